package database

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"time"

	"github.com/caddyserver/certmagic"
)

// CertStorage implements certmagic.Storage on top of the app database, so
// certificate material survives restarts without a separate state directory.
type CertStorage struct {
	db *sql.DB
}

// lockPollInterval is how often Lock re-attempts acquisition.
const lockPollInterval = 500 * time.Millisecond

// NewCertStorage creates a certmagic.Storage backed by the given database
func NewCertStorage(db *sql.DB) *CertStorage {
	return &CertStorage{db: db}
}

// Store saves a value under key
func (s *CertStorage) Store(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO certificates (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// Load retrieves the value stored under key
func (s *CertStorage) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM certificates WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, fs.ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Delete removes the value stored under key
func (s *CertStorage) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM certificates WHERE key = ?", key)
	return err
}

// Exists reports whether key exists
func (s *CertStorage) Exists(ctx context.Context, key string) bool {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM certificates WHERE key = ?", key).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// List returns keys under prefix. Keys are flat strings with / separators;
// non-recursive listing collapses results to immediate children the way a
// directory listing would.
func (s *CertStorage) List(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM certificates WHERE key LIKE ?", prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dirPrefix := prefix
	if dirPrefix != "" && !strings.HasSuffix(dirPrefix, "/") {
		dirPrefix += "/"
	}

	var keys []string
	seen := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}

		if recursive {
			keys = append(keys, key)
			continue
		}

		// Collapse key to its immediate child under the prefix
		rel := strings.TrimPrefix(key, dirPrefix)
		if rel == key && key != prefix {
			continue
		}
		child := key
		if idx := strings.Index(rel, "/"); idx != -1 {
			child = dirPrefix + rel[:idx]
		}
		if !seen[child] {
			seen[child] = true
			keys = append(keys, child)
		}
	}
	return keys, rows.Err()
}

// Stat returns metadata about the value stored under key
func (s *CertStorage) Stat(ctx context.Context, key string) (certmagic.KeyInfo, error) {
	var size int64
	var modified time.Time

	err := s.db.QueryRowContext(ctx,
		"SELECT length(value), updated_at FROM certificates WHERE key = ?", key).Scan(&size, &modified)
	if err == sql.ErrNoRows {
		return certmagic.KeyInfo{}, fs.ErrNotExist
	}
	if err != nil {
		return certmagic.KeyInfo{}, err
	}

	return certmagic.KeyInfo{
		Key:        key,
		Modified:   modified,
		Size:       size,
		IsTerminal: true,
	}, nil
}

// Lock blocks until the named lock is acquired or ctx is done. Locks held
// longer than two minutes are treated as abandoned and stolen.
func (s *CertStorage) Lock(ctx context.Context, key string) error {
	for {
		acquired, err := s.tryLock(ctx, key)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (s *CertStorage) tryLock(ctx context.Context, key string) (bool, error) {
	// Reap stale locks first so a crashed process cannot wedge renewals.
	// CURRENT_TIMESTAMP and datetime('now') are both UTC in SQLite.
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM cert_locks WHERE key = ? AND acquired_at < datetime('now', '-2 minutes')", key); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cert_locks (key, acquired_at)
		VALUES (?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO NOTHING
	`, key)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Unlock releases the named lock
func (s *CertStorage) Unlock(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cert_locks WHERE key = ?", key)
	return err
}
