// Package remote mirrors panel and camera mutations to the note backend's
// HTTP API. Every call is fire-and-forget: the canvas is the source of truth
// for layout, the backend copy is advisory, so a failed mirror is logged and
// never retried and never blocks a canvas operation.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
)

const requestTimeout = 10 * time.Second

// Client posts panel lifecycle changes to the configured base URL.
type Client struct {
	base    string
	token   string
	http    *http.Client
	logger  *slog.Logger
	observe func(op, outcome string)
	wg      sync.WaitGroup
}

// New validates the base URL and returns a client. token, when non-empty, is
// sent as a bearer credential.
func New(baseURL, token string, logger *slog.Logger) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("remote: invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme: %s (only http/https)", parsed.Scheme)
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		http:   &http.Client{Timeout: requestTimeout},
		logger: logger,
	}, nil
}

type panelPayload struct {
	NoteID   string         `json:"noteId"`
	PanelID  string         `json:"panelId"`
	StoreKey string         `json:"storeKey"`
	Type     string         `json:"type,omitempty"`
	Position geom.Point     `json:"position"`
	Size     *geom.Size     `json:"size,omitempty"`
	ZIndex   int            `json:"zIndex,omitempty"`
	Title    string         `json:"title,omitempty"`
	Metadata *panelMetadata `json:"metadata,omitempty"`
}

// panelMetadata carries the record fields the backend owns but the canvas
// does not render directly.
type panelMetadata struct {
	ParentID string `json:"parentId,omitempty"`
	Preview  string `json:"preview,omitempty"`
}

type cameraPayload struct {
	Camera geom.Camera `json:"camera"`
	UserID string      `json:"userId,omitempty"`
}

// CreatePanel mirrors a panel creation.
func (c *Client) CreatePanel(noteID string, item models.PanelItem, rec models.PanelRecord) {
	body := panelPayload{
		NoteID:   noteID,
		PanelID:  item.PanelID,
		StoreKey: string(item.StoreKey),
		Type:     string(item.PanelType),
		Position: item.Position,
		Size:     item.Dimensions,
		ZIndex:   item.ZIndex,
		Title:    item.Title,
	}
	if rec.ParentID != "" || rec.Preview != "" {
		body.Metadata = &panelMetadata{ParentID: rec.ParentID, Preview: rec.Preview}
	}
	c.send("create_panel", http.MethodPost, c.base+"/panels", body)
}

// DeletePanel mirrors a hard panel delete.
func (c *Client) DeletePanel(noteID, panelID string, key panelkey.StoreKey) {
	u := fmt.Sprintf("%s/panels/%s?noteId=%s&storeKey=%s",
		c.base, url.PathEscape(panelID), url.QueryEscape(noteID), url.QueryEscape(string(key)))
	c.send("delete_panel", http.MethodDelete, u, nil)
}

// PatchCamera mirrors a propagated camera state.
func (c *Client) PatchCamera(noteID string, cam geom.Camera, userID string) {
	body := cameraPayload{Camera: cam, UserID: userID}
	c.send("patch_camera", http.MethodPatch, c.base+"/camera/"+url.PathEscape(noteID), body)
}

// OnResult sets a callback invoked once per mirror request with the
// operation name and an outcome of "ok", "rejected", or "error". Set it
// before handing the client to the engine.
func (c *Client) OnResult(fn func(op, outcome string)) {
	c.observe = fn
}

func (c *Client) report(op, outcome string) {
	if c.observe != nil {
		c.observe(op, outcome)
	}
}

func (c *Client) send(op, method, rawURL string, body any) {
	var buf []byte
	if body != nil {
		var err error
		buf, err = json.Marshal(body)
		if err != nil {
			c.logger.Warn("remote: encode payload failed", slog.String("error", err.Error()))
			c.report(op, "error")
			return
		}
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		var rd io.Reader
		if buf != nil {
			rd = bytes.NewReader(buf)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
		if err != nil {
			c.logger.Warn("remote: build request failed",
				slog.String("url", rawURL), slog.String("error", err.Error()))
			c.report(op, "error")
			return
		}
		if buf != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Warn("remote: request failed",
				slog.String("method", method), slog.String("url", rawURL),
				slog.String("error", err.Error()))
			c.report(op, "error")
			return
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 300 {
			c.logger.Warn("remote: request rejected",
				slog.String("method", method), slog.String("url", rawURL),
				slog.Int("status", resp.StatusCode))
			c.report(op, "rejected")
			return
		}
		c.report(op, "ok")
	}()
}

// Close waits for in-flight mirrors to finish.
func (c *Client) Close() {
	c.wg.Wait()
}

// Noop discards every mirror call; used when no backend is configured.
type Noop struct{}

func (Noop) CreatePanel(string, models.PanelItem, models.PanelRecord) {}
func (Noop) DeletePanel(string, string, panelkey.StoreKey)            {}
func (Noop) PatchCamera(string, geom.Camera, string)                  {}
