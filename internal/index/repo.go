package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Entry is one row of the hash index.
type Entry struct {
	Dir       string
	Hash      string
	Filename  string
	CreatedAt time.Time
}

// Lookup returns the filename recorded for hash in dir.
func (db *DB) Lookup(ctx context.Context, dir, hash string) (string, bool, error) {
	var name string
	err := db.conn.QueryRowContext(ctx,
		`SELECT filename FROM media_hashes WHERE dir = ? AND hash = ?`, dir, hash).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("index: lookup: %w", err)
	}
	return name, true, nil
}

// Register records that filename in dir holds content with each of hashes.
func (db *DB) Register(ctx context.Context, dir, filename string, hashes ...string) error {
	if len(hashes) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO media_hashes (dir, hash, filename, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(dir, hash) DO UPDATE SET
			filename   = excluded.filename,
			created_at = excluded.created_at
	`)
	if err != nil {
		return fmt.Errorf("index: prepare register: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		if _, err := stmt.ExecContext(ctx, dir, h, filename, now); err != nil {
			return fmt.Errorf("index: register: %w", err)
		}
	}
	return tx.Commit()
}

// Forget removes every hash pointing at filename in dir.
func (db *DB) Forget(ctx context.Context, dir, filename string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM media_hashes WHERE dir = ? AND filename = ?`, dir, filename); err != nil {
		return fmt.Errorf("index: forget: %w", err)
	}
	return nil
}

// Entries returns every row, ordered by dir and filename.
func (db *DB) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT dir, hash, filename, created_at FROM media_hashes ORDER BY dir, filename, hash`)
	if err != nil {
		return nil, fmt.Errorf("index: entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Dir, &e.Hash, &e.Filename, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
