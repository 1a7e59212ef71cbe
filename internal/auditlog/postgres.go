package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS game_logs (
    notification_id TEXT PRIMARY KEY,
    game_id         TEXT NOT NULL,
    boardgame       TEXT NOT NULL,
    cancelled       BOOLEAN NOT NULL DEFAULT FALSE,
    players         JSONB NOT NULL,
    started_at      TIMESTAMPTZ,
    ended_at        TIMESTAMPTZ NOT NULL,
    duration_ms     BIGINT NOT NULL DEFAULT 0
)`

type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure game_logs: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Write inserts e unless a row for the same notification exists.
func (p *Postgres) Write(ctx context.Context, e Entry) error {
	if p == nil || p.db == nil {
		return nil
	}
	players, err := json.Marshal(e.Players)
	if err != nil {
		return err
	}
	var started any
	if !e.StartedAt.IsZero() {
		started = e.StartedAt
	}
	q := `INSERT INTO game_logs (
        notification_id, game_id, boardgame, cancelled, players,
        started_at, ended_at, duration_ms
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
      ON CONFLICT (notification_id) DO NOTHING`
	_, err = p.db.ExecContext(ctx, q,
		e.NotificationID, e.GameID, e.Boardgame, e.Cancelled, string(players),
		started, e.EndedAt, durationMillis(e),
	)
	return err
}

func durationMillis(e Entry) int64 {
	if e.StartedAt.IsZero() {
		return 0
	}
	d := e.EndedAt.Sub(e.StartedAt).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}
