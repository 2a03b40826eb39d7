package db

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// FreshFor is how long a stored access token is assumed to stay usable.
// Spotify issues hour long tokens; the margin absorbs clock drift.
const FreshFor = 55 * time.Minute

// TokenRecord is a stored OAuth token together with the time it was issued.
type TokenRecord struct {
	UserID   string
	Token    *oauth2.Token
	IssuedAt time.Time
}

// Fresh reports whether the record is younger than FreshFor at now. This is
// a heuristic, not a verified expiry.
func (r TokenRecord) Fresh(now time.Time) bool {
	return now.Sub(r.IssuedAt) < FreshFor
}

// SaveToken persists the OAuth token for the given userID, stamped with the
// current time. If a token already exists it is replaced.
func (db *DB) SaveToken(ctx context.Context, userID string, token *oauth2.Token) error {
	b, err := json.Marshal(token)
	if err != nil {
		return err
	}
	_, err = db.exec(ctx, `INSERT INTO tokens(user_id, token, issued_at) VALUES(?, ?, ?) ON CONFLICT(user_id) DO UPDATE SET token=excluded.token, issued_at=excluded.issued_at`,
		userID, string(b), db.now().UTC())
	return err
}

// GetToken retrieves the token record stored for userID. sql.ErrNoRows is
// returned when none exists.
func (db *DB) GetToken(ctx context.Context, userID string) (*TokenRecord, error) {
	var (
		data string
		rec  = TokenRecord{UserID: userID}
	)
	if err := db.queryRow(ctx, `SELECT token, issued_at FROM tokens WHERE user_id=?`, userID).Scan(&data, &rec.IssuedAt); err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, err
	}
	rec.Token = &tok
	return &rec, nil
}

// DeleteToken removes any token stored for userID.
func (db *DB) DeleteToken(ctx context.Context, userID string) error {
	_, err := db.exec(ctx, `DELETE FROM tokens WHERE user_id=?`, userID)
	return err
}
