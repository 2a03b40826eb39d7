package db

import (
	"context"
	"time"

	"SonicMirror/pkg/llm"
)

var _ llm.Recorder = (*DB)(nil)

// Generation is one logged language model call.
type Generation struct {
	ID        int64     `json:"id"`
	Provider  string    `json:"provider"`
	Feature   string    `json:"feature"`
	Success   bool      `json:"success"`
	LatencyMs int64     `json:"latencyMs"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordGeneration appends g to the generation log. A zero CreatedAt is set
// to the current time.
func (db *DB) RecordGeneration(ctx context.Context, g Generation) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = db.now()
	}
	_, err := db.exec(ctx, `INSERT INTO generations(provider, feature, success, latency_ms, error, created_at) VALUES(?,?,?,?,?,?)`,
		g.Provider, g.Feature, g.Success, g.LatencyMs, g.Error, unixMilli(g.CreatedAt))
	return err
}

// RecordCall logs a gateway call. It lets the database act as the
// gateway's llm.Recorder.
func (db *DB) RecordCall(ctx context.Context, c llm.Call) error {
	g := Generation{
		Provider:  c.Provider,
		Feature:   c.Feature,
		Success:   c.Success,
		LatencyMs: c.Latency.Milliseconds(),
	}
	if c.Err != nil {
		g.Error = c.Err.Error()
	}
	return db.RecordGeneration(ctx, g)
}

// RecentGenerations returns up to limit log entries, newest first.
func (db *DB) RecentGenerations(ctx context.Context, limit int) ([]Generation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.query(ctx, `SELECT id, provider, feature, success, latency_ms, error, created_at FROM generations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Generation
	for rows.Next() {
		var (
			g       Generation
			created int64
		)
		if err := rows.Scan(&g.ID, &g.Provider, &g.Feature, &g.Success, &g.LatencyMs, &g.Error, &created); err != nil {
			return nil, err
		}
		g.CreatedAt = fromUnixMilli(created)
		res = append(res, g)
	}
	return res, rows.Err()
}

// FeatureUsage summarises the generation log for one feature.
type FeatureUsage struct {
	Feature      string  `json:"feature"`
	Calls        int     `json:"calls"`
	Failures     int     `json:"failures"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
}

// FeatureUsageSince aggregates calls per feature since the provided time,
// most used first.
func (db *DB) FeatureUsageSince(ctx context.Context, since time.Time) ([]FeatureUsage, error) {
	rows, err := db.query(ctx, `SELECT feature, COUNT(*) c, SUM(CASE WHEN success THEN 0 ELSE 1 END), AVG(latency_ms) FROM generations WHERE created_at>=? GROUP BY feature ORDER BY c DESC, feature`, unixMilli(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []FeatureUsage
	for rows.Next() {
		var fu FeatureUsage
		if err := rows.Scan(&fu.Feature, &fu.Calls, &fu.Failures, &fu.AvgLatencyMs); err != nil {
			return nil, err
		}
		res = append(res, fu)
	}
	return res, rows.Err()
}
