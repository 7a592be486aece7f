// Package history persists a record of every announcement that was fanned
// out, so operators can see what was said, when, and how delivery went.
//
// It currently supports:
//   - "file": dependency-free JSON Lines append log
//   - "sqlite": SQLite database file (optional build tag)
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"announcer/pkg/logx"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the history store.
//
// If Driver is empty or "none", history is disabled and Open returns
// (nil, nil).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry records one broadcast announcement.
// Keep it compact and schema-stable.
type Entry struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"` // "player_joined", "game_ended", "scheduled"
	Message string    `json:"message"`
	Total   int       `json:"total"`
	Failed  int       `json:"failed"`
}

// Store is the minimal persistence API the plugin uses.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if history is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
