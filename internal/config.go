package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/dandytbermillo/canvasd/internal/canvas"
	"github.com/dandytbermillo/canvasd/internal/geom"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
	AuthModeJWT      = "jwt"
)

// Panel store drivers.
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// Archive drivers.
const (
	ArchiveDriverNone = "none"
	ArchiveDriverFS   = "fs"
	ArchiveDriverS3   = "s3"
)

// Duration wraps time.Duration so YAML values like "500ms" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Auth     AuthConfig        `yaml:"auth"`
	Snapshot SnapshotConfig    `yaml:"snapshot"`
	Store    StoreConfig       `yaml:"store"`
	Archive  ArchiveConfig     `yaml:"archive"`
	Remote   RemoteConfig      `yaml:"remote"`
	Canvas   CanvasConfig      `yaml:"canvas"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Snapshot.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Archive.Validate(); err != nil {
		return err
	}
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	return c.Canvas.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
//   - "jwt": HS256-signed bearer tokens; JWTSecret must be non-empty. The
//     token's sub claim becomes the userId attributed to camera updates.
type AuthConfig struct {
	Mode      string `yaml:"mode"`
	Token     string `yaml:"token"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required,
			validation.In(AuthModeDisabled, AuthModeToken, AuthModeJWT)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	if c.Mode == AuthModeJWT && c.JWTSecret == "" {
		return fmt.Errorf("auth: mode is %q but jwt_secret is empty", AuthModeJWT)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken || c.Mode == AuthModeJWT
}

// SnapshotConfig holds the SQLite layout cache configuration.
type SnapshotConfig struct {
	Path     string   `yaml:"path"`
	Debounce Duration `yaml:"debounce"`
}

// Validate validates the snapshot configuration.
func (c *SnapshotConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// DebounceOrDefault returns the configured debounce window, falling back to
// 500ms when unset.
func (c *SnapshotConfig) DebounceOrDefault() time.Duration {
	if c.Debounce > 0 {
		return c.Debounce.Std()
	}
	return 500 * time.Millisecond
}

// StoreConfig selects the authoritative panel record store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = StoreDriverMemory
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required,
			validation.In(StoreDriverMemory, StoreDriverPostgres)),
	); err != nil {
		return err
	}
	if c.Driver == StoreDriverPostgres && c.DSN == "" {
		return fmt.Errorf("store: driver is %q but dsn is empty", StoreDriverPostgres)
	}
	return nil
}

// S3Config holds the S3 archive target.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// ArchiveConfig selects where committed snapshots are exported.
type ArchiveConfig struct {
	Driver string   `yaml:"driver"`
	Path   string   `yaml:"path"`
	S3     S3Config `yaml:"s3"`
}

// Validate validates the archive configuration.
func (c *ArchiveConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = ArchiveDriverNone
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required,
			validation.In(ArchiveDriverNone, ArchiveDriverFS, ArchiveDriverS3)),
	); err != nil {
		return err
	}
	switch c.Driver {
	case ArchiveDriverFS:
		if c.Path == "" {
			return fmt.Errorf("archive: driver is %q but path is empty", ArchiveDriverFS)
		}
	case ArchiveDriverS3:
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return fmt.Errorf("archive: driver is %q but s3 bucket or region is empty", ArchiveDriverS3)
		}
	}
	return nil
}

// RemoteConfig holds the remote persistence mirror target.
type RemoteConfig struct {
	Enabled bool     `yaml:"enabled"`
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	if c.Enabled && c.BaseURL == "" {
		return fmt.Errorf("remote: enabled but base_url is empty")
	}
	return nil
}

// CameraConfig is the YAML shape of a camera override.
type CameraConfig struct {
	TranslateX float64 `yaml:"translate_x"`
	TranslateY float64 `yaml:"translate_y"`
	Zoom       float64 `yaml:"zoom"`
}

// PointConfig is the YAML shape of a world-space point override.
type PointConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// SizeConfig is the YAML shape of a dimensions override.
type SizeConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// CanvasConfig overrides the engine tuning knobs. Zero values keep the
// defaults from canvas.DefaultParams.
type CanvasConfig struct {
	MinZoom       float64 `yaml:"min_zoom"`
	MaxZoom       float64 `yaml:"max_zoom"`
	ZoomInFactor  float64 `yaml:"zoom_in_factor"`
	ZoomOutFactor float64 `yaml:"zoom_out_factor"`

	DefaultCamera        CameraConfig `yaml:"default_camera"`
	DefaultPanelPosition PointConfig  `yaml:"default_panel_position"`
	DefaultPanelSize     SizeConfig   `yaml:"default_panel_size"`
	DefaultViewport      SizeConfig   `yaml:"default_viewport"`

	RepairThreshold     float64  `yaml:"repair_threshold"`
	FrameInterval       Duration `yaml:"frame_interval"`
	MeasureAttempts     int      `yaml:"measure_attempts"`
	MeasureDelay        Duration `yaml:"measure_delay"`
	CenterAttempts      int      `yaml:"center_attempts"`
	CenterDelay         Duration `yaml:"center_delay"`
	ConnectionsThrottle Duration `yaml:"connections_throttle"`
	PositionCacheTTL    Duration `yaml:"position_cache_ttl"`
}

// Validate validates the canvas overrides.
func (c *CanvasConfig) Validate() error {
	if c.MinZoom < 0 || c.MaxZoom < 0 {
		return fmt.Errorf("canvas: zoom bounds must be positive")
	}
	if c.MinZoom > 0 && c.MaxZoom > 0 && c.MinZoom > c.MaxZoom {
		return fmt.Errorf("canvas: min_zoom %v exceeds max_zoom %v", c.MinZoom, c.MaxZoom)
	}
	if c.ZoomInFactor != 0 && c.ZoomInFactor <= 1 {
		return fmt.Errorf("canvas: zoom_in_factor must be greater than 1")
	}
	if c.ZoomOutFactor != 0 && (c.ZoomOutFactor <= 0 || c.ZoomOutFactor >= 1) {
		return fmt.Errorf("canvas: zoom_out_factor must be between 0 and 1")
	}
	if c.RepairThreshold < 0 {
		return fmt.Errorf("canvas: repair_threshold must not be negative")
	}
	return nil
}

// Params folds the configured overrides into the engine defaults.
func (c *CanvasConfig) Params() canvas.Params {
	p := canvas.DefaultParams()
	if c.MinZoom > 0 {
		p.MinZoom = c.MinZoom
	}
	if c.MaxZoom > 0 {
		p.MaxZoom = c.MaxZoom
	}
	if c.ZoomInFactor > 0 {
		p.ZoomInFactor = c.ZoomInFactor
	}
	if c.ZoomOutFactor > 0 {
		p.ZoomOutFactor = c.ZoomOutFactor
	}
	if c.DefaultCamera != (CameraConfig{}) {
		p.DefaultCamera = geom.Camera{
			TranslateX: c.DefaultCamera.TranslateX,
			TranslateY: c.DefaultCamera.TranslateY,
			Zoom:       c.DefaultCamera.Zoom,
		}
	}
	if c.DefaultPanelPosition != (PointConfig{}) {
		p.DefaultPanelPosition = geom.Point{X: c.DefaultPanelPosition.X, Y: c.DefaultPanelPosition.Y}
	}
	if c.DefaultPanelSize != (SizeConfig{}) {
		p.DefaultPanelSize = geom.Size{Width: c.DefaultPanelSize.Width, Height: c.DefaultPanelSize.Height}
	}
	if c.DefaultViewport != (SizeConfig{}) {
		p.DefaultViewport = geom.Size{Width: c.DefaultViewport.Width, Height: c.DefaultViewport.Height}
	}
	if c.RepairThreshold > 0 {
		p.RepairThreshold = c.RepairThreshold
	}
	if c.FrameInterval > 0 {
		p.FrameInterval = c.FrameInterval.Std()
	}
	if c.MeasureAttempts > 0 {
		p.MeasureAttempts = c.MeasureAttempts
	}
	if c.MeasureDelay > 0 {
		p.MeasureDelay = c.MeasureDelay.Std()
	}
	if c.CenterAttempts > 0 {
		p.CenterAttempts = c.CenterAttempts
	}
	if c.CenterDelay > 0 {
		p.CenterDelay = c.CenterDelay.Std()
	}
	if c.ConnectionsThrottle > 0 {
		p.ConnectionsThrottle = c.ConnectionsThrottle.Std()
	}
	return p
}

// HintTTL returns the live-position cache TTL, defaulting to 5 minutes.
func (c *CanvasConfig) HintTTL() time.Duration {
	if c.PositionCacheTTL > 0 {
		return c.PositionCacheTTL.Std()
	}
	return 5 * time.Minute
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Snapshot: SnapshotConfig{
			Path:     "./canvasd.db",
			Debounce: Duration(500 * time.Millisecond),
		},
		Store: StoreConfig{
			Driver: StoreDriverMemory,
		},
		Archive: ArchiveConfig{
			Driver: ArchiveDriverNone,
		},
		Remote: RemoteConfig{
			Timeout: Duration(10 * time.Second),
		},
	}
}
