// This file contains the endpoints responsible for creating and reading
// shareable links for generated results. Each share is stored with a short ID
// allowing anyone with the link to view the content without authentication.
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"SonicMirror/pkg/prompts"
)

// maxShareBytes bounds the stored content of a single share.
const maxShareBytes = 64 << 10

// CreateShare stores a generated result and returns a link to it. The request
// body should contain `feature` and `content`, where content is the JSON
// object previously returned by /llm/{feature}.
func (app *Application) CreateShare(w http.ResponseWriter, r *http.Request) {
	if app.DB == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	var req struct {
		Feature string          `json:"feature"`
		Content json.RawMessage `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := prompts.Lookup(req.Feature); !ok {
		respondJSONError(w, http.StatusBadRequest, "unknown feature")
		return
	}
	var obj map[string]any
	if err := json.Unmarshal(req.Content, &obj); err != nil || len(obj) == 0 {
		respondJSONError(w, http.StatusBadRequest, "content must be a non-empty JSON object")
		return
	}
	if len(req.Content) > maxShareBytes {
		respondJSONError(w, http.StatusRequestEntityTooLarge, "content too large")
		return
	}
	// Persist the result and generate a short identifier. This ID is used
	// by GetShare to retrieve the record.
	id, err := app.DB.CreateShare(r.Context(), req.Feature, req.Content)
	if err != nil {
		logFor(r).WithError(err).Error("store share")
		respondJSONError(w, http.StatusInternalServerError, "failed to store share")
		return
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s/share/%s", scheme, r.Host, id)
	respondJSON(w, http.StatusCreated, map[string]string{"id": id, "url": url})
}

// GetShare returns a stored share. Missing entries result in a 404 response.
func (app *Application) GetShare(w http.ResponseWriter, r *http.Request) {
	if app.DB == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	s, err := app.DB.GetShare(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondJSONError(w, http.StatusNotFound, "share not found")
		} else {
			logFor(r).WithError(err).Error("load share")
			respondJSONError(w, http.StatusInternalServerError, "failed to load share")
		}
		return
	}
	respondJSON(w, http.StatusOK, s)
}
