// This file contains the endpoint that exposes usage of the generation
// features: per feature call counts from the generation log, the most recent
// calls, the rate limiter windows and cache statistics.

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"SonicMirror/pkg/cache"
	"SonicMirror/pkg/db"
	"SonicMirror/pkg/ratelimit"
)

// recentGenerations is how many log entries Insights returns.
const recentGenerations = 20

type insightsResponse struct {
	Since      time.Time                   `json:"since"`
	Usage      []db.FeatureUsage           `json:"usage"`
	Recent     []db.Generation             `json:"recent"`
	RateLimits map[string]ratelimit.Window `json:"rateLimits,omitempty"`
	Cache      *cache.Stats                `json:"cache,omitempty"`
}

// Insights summarises generation usage for a configurable period controlled
// by the 'days' query parameter (default 7).
func (app *Application) Insights(w http.ResponseWriter, r *http.Request) {
	if app.DB == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 7
	}
	res := insightsResponse{Since: app.now().AddDate(0, 0, -days).UTC()}
	var err error
	if res.Usage, err = app.DB.FeatureUsageSince(r.Context(), res.Since); err != nil {
		logFor(r).WithError(err).Error("load feature usage")
		respondJSONError(w, http.StatusInternalServerError, "failed to load insights")
		return
	}
	if res.Recent, err = app.DB.RecentGenerations(r.Context(), recentGenerations); err != nil {
		logFor(r).WithError(err).Error("load recent generations")
		respondJSONError(w, http.StatusInternalServerError, "failed to load insights")
		return
	}
	if app.Limiter != nil {
		res.RateLimits = app.Limiter.Snapshot()
	}
	if app.Cache != nil {
		st := app.Cache.Stats()
		res.Cache = &st
	}
	respondJSON(w, http.StatusOK, res)
}
