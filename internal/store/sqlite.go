//go:build sqlite
// +build sqlite

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"blastbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (State, error) {
	var st State

	rows, err := s.db.QueryContext(ctx, `SELECT identifier FROM contacts ORDER BY ordinal`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return st, err
		}
		st.Contacts = append(st.Contacts, id)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	crows, err := s.db.QueryContext(ctx, `SELECT record FROM campaigns ORDER BY seq`)
	if err != nil {
		return st, err
	}
	defer crows.Close()
	for crows.Next() {
		var raw string
		if err := crows.Scan(&raw); err != nil {
			return st, err
		}
		var rec CampaignRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return st, err
		}
		st.Campaigns = append(st.Campaigns, rec)
	}
	if err := crows.Err(); err != nil {
		return st, err
	}

	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT record FROM current WHERE slot = 0`).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return st, err
	default:
		var rec CampaignRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return st, err
		}
		st.Current = &rec
	}
	return st, nil
}

func (s *sqliteStore) Save(ctx context.Context, st State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Whole-snapshot overwrite semantics, same as the file driver.
	for _, stmt := range []string{`DELETE FROM contacts`, `DELETE FROM campaigns`, `DELETE FROM current`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for i, id := range st.Contacts {
		if _, err := tx.ExecContext(ctx, `INSERT INTO contacts(ordinal, identifier) VALUES(?,?)`, i, id); err != nil {
			return err
		}
	}
	for _, rec := range st.Campaigns {
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO campaigns(id, record) VALUES(?,?)`, rec.ID, string(b)); err != nil {
			return err
		}
	}
	if st.Current != nil {
		b, err := json.Marshal(st.Current)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO current(slot, record) VALUES(0,?)`, string(b)); err != nil {
			return err
		}
	}
	return tx.Commit()
}
