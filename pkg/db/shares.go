package db

import (
	"context"
	"encoding/json"
	"time"
)

// Share is a generated result published under a short random ID.
type Share struct {
	ID        string          `json:"id"`
	Feature   string          `json:"feature"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"createdAt"`
}

// CreateShare stores content under a new random ID and returns the ID for
// link construction.
func (db *DB) CreateShare(ctx context.Context, feature string, content json.RawMessage) (string, error) {
	id, err := randomString(12)
	if err != nil {
		return "", err
	}
	_, err = db.exec(ctx, `INSERT INTO shares(id, feature, content, created_at) VALUES(?,?,?,?)`, id, feature, string(content), db.now().UTC())
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetShare looks up a share by ID. sql.ErrNoRows is returned if the ID does
// not exist.
func (db *DB) GetShare(ctx context.Context, id string) (Share, error) {
	var (
		s       = Share{ID: id}
		content string
	)
	err := db.queryRow(ctx, `SELECT feature, content, created_at FROM shares WHERE id=?`, id).Scan(&s.Feature, &content, &s.CreatedAt)
	if err != nil {
		return Share{}, err
	}
	s.Content = json.RawMessage(content)
	return s, nil
}
