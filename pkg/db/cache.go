package db

import (
	"context"
	"time"

	"SonicMirror/pkg/cache"
)

var _ cache.Mirror = (*DB)(nil)

// Put implements cache.Mirror.
func (db *DB) Put(ctx context.Context, key string, e cache.Entry) error {
	_, err := db.exec(ctx, `INSERT INTO cache_entries(key, data, created_at, expires_at) VALUES(?,?,?,?) ON CONFLICT(key) DO UPDATE SET data=excluded.data, created_at=excluded.created_at, expires_at=excluded.expires_at`,
		key, e.Data, unixMilli(e.CreatedAt), unixMilli(e.ExpiresAt))
	return err
}

// Delete implements cache.Mirror.
func (db *DB) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if _, err := db.exec(ctx, `DELETE FROM cache_entries WHERE key=?`, k); err != nil {
			return err
		}
	}
	return nil
}

// Load implements cache.Mirror. Only unexpired rows are returned.
func (db *DB) Load(ctx context.Context) (map[string]cache.Entry, error) {
	rows, err := db.query(ctx, `SELECT key, data, created_at, expires_at FROM cache_entries WHERE expires_at>?`, unixMilli(db.now()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]cache.Entry)
	for rows.Next() {
		var (
			k                  string
			data               []byte
			created, expiresAt int64
		)
		if err := rows.Scan(&k, &data, &created, &expiresAt); err != nil {
			return nil, err
		}
		out[k] = cache.Entry{Data: data, CreatedAt: fromUnixMilli(created), ExpiresAt: fromUnixMilli(expiresAt)}
	}
	return out, rows.Err()
}

// PurgeExpiredCache deletes mirror rows that expired before now and reports
// how many were removed.
func (db *DB) PurgeExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.exec(ctx, `DELETE FROM cache_entries WHERE expires_at<=?`, unixMilli(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
