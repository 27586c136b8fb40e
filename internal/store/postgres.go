package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
)

const panelsDDL = `CREATE TABLE IF NOT EXISTS panels (
	store_key  TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const mirrorOpTimeout = 5 * time.Second

// mirrorJob is one pending row write. A nil payload deletes the row.
type mirrorJob struct {
	key     panelkey.StoreKey
	payload []byte
}

// execContexter is the slice of *sql.DB the write path needs.
type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Postgres mirrors the in-memory store into a Postgres table so panel
// records survive process restarts. Reads and change notification are served
// by the embedded Memory store. Mutations return as soon as the in-memory
// state is updated; a single worker drains the row writes in order, so a
// slow database never stalls a canvas operation. Failed writes are logged
// and dropped, the in-memory state stands.
type Postgres struct {
	*Memory
	db     *sql.DB
	exec   execContexter
	logger *slog.Logger

	mu      sync.Mutex
	queue   []mirrorJob
	closed  bool
	kick    chan struct{}
	stopped chan struct{}
}

// NewPostgres opens the mirror, applies the schema, hydrates the in-memory
// state from existing rows, and starts the write-behind worker.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, panelsDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	p := &Postgres{
		Memory:  NewMemory(),
		db:      db,
		exec:    db,
		logger:  logger,
		kick:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	if err := p.loadAll(ctx); err != nil {
		db.Close()
		return nil, err
	}
	go p.mirrorLoop()
	return p, nil
}

func (p *Postgres) loadAll(ctx context.Context) error {
	rows, err := p.db.QueryContext(ctx, `SELECT store_key, record FROM panels`)
	if err != nil {
		return fmt.Errorf("store: load panels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return fmt.Errorf("store: scan panel: %w", err)
		}
		var rec models.PanelRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			p.logger.Warn("store: skipping undecodable panel row",
				slog.String("store_key", key), slog.String("error", err.Error()))
			continue
		}
		p.Memory.Set(panelkey.StoreKey(key), rec)
	}
	return rows.Err()
}

// Set stores the record in memory and queues the row write.
func (p *Postgres) Set(key panelkey.StoreKey, rec models.PanelRecord) {
	p.Memory.Set(key, rec)

	raw, err := json.Marshal(rec)
	if err != nil {
		p.logger.Warn("store: encode panel failed",
			slog.String("store_key", string(key)), slog.String("error", err.Error()))
		return
	}
	p.enqueue(mirrorJob{key: key, payload: raw})
}

// Delete removes the record from memory and queues the row delete.
func (p *Postgres) Delete(key panelkey.StoreKey) {
	p.Memory.Delete(key)
	p.enqueue(mirrorJob{key: key})
}

func (p *Postgres) enqueue(j mirrorJob) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, j)
	p.mu.Unlock()

	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Postgres) mirrorLoop() {
	defer close(p.stopped)
	for range p.kick {
		p.drain()
	}
	p.drain()
}

func (p *Postgres) drain() {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if err := p.apply(j); err != nil {
			p.logger.Warn("store: mirror write failed",
				slog.String("store_key", string(j.key)), slog.String("error", err.Error()))
		}
	}
}

func (p *Postgres) apply(j mirrorJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorOpTimeout)
	defer cancel()

	var err error
	if j.payload == nil {
		_, err = p.exec.ExecContext(ctx, `DELETE FROM panels WHERE store_key = $1`, string(j.key))
	} else {
		_, err = p.exec.ExecContext(ctx, `
			INSERT INTO panels (store_key, record, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (store_key) DO UPDATE SET record = excluded.record, updated_at = now()
		`, string(j.key), j.payload)
	}
	return err
}

// Close drains the pending writes and releases the database handle.
func (p *Postgres) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.kick)
	<-p.stopped
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
