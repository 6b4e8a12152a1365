// Package store persists the bot's durable snapshot: the contact registry,
// the campaign history, and the currently running campaign (if any).
package store

import (
	"errors"
	"strings"
	"time"

	"blastbot/pkg/logx"
)

// Config configures storage.
//
// Driver values:
//   - "file":   JSON snapshot file, written atomically (tmp + rename)
//   - "sqlite": SQLite database file (requires the sqlite build tag)
//   - "memory": process-local, for tests
//
// If Driver is empty, "file" is assumed.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
