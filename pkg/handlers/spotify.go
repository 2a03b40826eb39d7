package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	libspotify "github.com/zmb3/spotify"

	"SonicMirror/pkg/cache"
	"SonicMirror/pkg/spotify"
)

// maxAudioFeatureIDs is the most track IDs Spotify accepts per request.
const maxAudioFeatureIDs = 100

// spotifyError translates relay errors into responses. Upstream failures keep
// the upstream status code.
func (app *Application) spotifyError(w http.ResponseWriter, r *http.Request, err error) {
	var se *spotify.StatusError
	switch {
	case errors.As(err, &se):
		if se.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(se.RetryAfter.Seconds()))))
		}
		respondJSONError(w, se.Status, se.Message)
	case spotify.IsBadRequest(err):
		respondJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		logFor(r).Debug("client went away")
	default:
		logFor(r).WithError(err).Error("spotify request")
		respondJSONError(w, http.StatusBadGateway, "spotify request failed")
	}
}

// intParam parses an optional integer query parameter. Zero is returned when
// it is absent.
func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func topOptions(r *http.Request) (spotify.TopOptions, error) {
	limit, err := intParam(r, "limit")
	if err != nil {
		return spotify.TopOptions{}, err
	}
	return spotify.TopOptions{Limit: limit, TimeRange: r.URL.Query().Get("time_range")}, nil
}

// relayRead serves a cached read. The cache key includes a hash of the
// access token so users never see each other's data.
func (app *Application) relayRead(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, c *spotify.Client) (any, error)) {
	token, ok := app.accessToken(w, r)
	if !ok {
		return
	}
	key := cache.SpotifyKey(token, r.URL.Path, r.URL.Query())
	if app.Cache != nil {
		if b, ok := app.Cache.Get(key); ok {
			w.Header().Set("X-Cache", "HIT")
			respondRaw(w, http.StatusOK, b)
			return
		}
	}
	v, err := fetch(r.Context(), app.Relay.Client(r.Context(), token))
	if err != nil {
		app.spotifyError(w, r, err)
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		logFor(r).WithError(err).Error("encode spotify response")
		respondJSONError(w, http.StatusInternalServerError, "encode response")
		return
	}
	if app.Cache != nil && app.SpotifyCacheTTL > 0 {
		app.Cache.Set(key, b, app.SpotifyCacheTTL)
	}
	w.Header().Set("X-Cache", "MISS")
	respondRaw(w, http.StatusOK, b)
}

// SpotifyMe returns the token owner's profile.
func (app *Application) SpotifyMe(w http.ResponseWriter, r *http.Request) {
	app.relayRead(w, r, func(ctx context.Context, c *spotify.Client) (any, error) {
		return c.CurrentUser(ctx)
	})
}

// SpotifyTopArtists proxies /me/top/artists.
func (app *Application) SpotifyTopArtists(w http.ResponseWriter, r *http.Request) {
	opts, err := topOptions(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	app.relayRead(w, r, func(ctx context.Context, c *spotify.Client) (any, error) {
		return c.TopArtists(ctx, opts)
	})
}

// SpotifyTopTracks proxies /me/top/tracks.
func (app *Application) SpotifyTopTracks(w http.ResponseWriter, r *http.Request) {
	opts, err := topOptions(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	app.relayRead(w, r, func(ctx context.Context, c *spotify.Client) (any, error) {
		return c.TopTracks(ctx, opts)
	})
}

// SpotifyRecentlyPlayed proxies /me/player/recently-played.
func (app *Application) SpotifyRecentlyPlayed(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	app.relayRead(w, r, func(ctx context.Context, c *spotify.Client) (any, error) {
		items, err := c.RecentlyPlayed(ctx, limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"items": items}, nil
	})
}

// SpotifyAudioFeatures returns per track features for ids together with
// their averages.
func (app *Application) SpotifyAudioFeatures(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		respondJSONError(w, http.StatusBadRequest, "ids is required")
		return
	}
	if len(ids) > maxAudioFeatureIDs {
		respondJSONError(w, http.StatusBadRequest, fmt.Sprintf("at most %d ids are allowed", maxAudioFeatureIDs))
		return
	}
	app.relayRead(w, r, func(ctx context.Context, c *spotify.Client) (any, error) {
		feats, err := c.AudioFeatures(ctx, ids...)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"audio_features": feats,
			"averages":       spotify.CalculateAverageFeatures(feats),
		}, nil
	})
}

// SpotifyGenres derives a genre histogram from the user's top artists.
func (app *Application) SpotifyGenres(w http.ResponseWriter, r *http.Request) {
	opts, err := topOptions(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if opts.Limit == 0 {
		opts.Limit = spotify.MaxLimit
	}
	app.relayRead(w, r, func(ctx context.Context, c *spotify.Client) (any, error) {
		page, err := c.TopArtists(ctx, opts)
		if err != nil {
			return nil, err
		}
		return map[string]any{"genres": spotify.ExtractTopGenres(page.Artists)}, nil
	})
}

// SpotifyProfile builds a complete ListeningProfile server side.
func (app *Application) SpotifyProfile(w http.ResponseWriter, r *http.Request) {
	opts, err := topOptions(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	app.relayRead(w, r, func(ctx context.Context, c *spotify.Client) (any, error) {
		return spotify.BuildProfile(ctx, c, opts)
	})
}

// SpotifySearch proxies the catalog search.
func (app *Application) SpotifySearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondJSONError(w, http.StatusBadRequest, "missing search query")
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	typ := r.URL.Query().Get("type")
	app.relayRead(w, r, func(ctx context.Context, c *spotify.Client) (any, error) {
		return c.Search(ctx, q, typ, limit)
	})
}

// SpotifyCreatePlaylist creates a playlist for the token owner and
// optionally fills it with tracks.
func (app *Application) SpotifyCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	token, ok := app.accessToken(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Public      bool     `json:"public"`
		UserID      string   `json:"userId"`
		URIs        []string `json:"uris"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondJSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	ctx := r.Context()
	c := app.Relay.Client(ctx, token)
	if req.UserID == "" {
		u, err := c.CurrentUser(ctx)
		if err != nil {
			app.spotifyError(w, r, err)
			return
		}
		req.UserID = u.ID
	}
	pl, err := c.CreatePlaylist(ctx, req.UserID, req.Name, req.Description, req.Public)
	if err != nil {
		app.spotifyError(w, r, err)
		return
	}
	if len(req.URIs) > 0 {
		snap, err := c.AddTracks(ctx, string(pl.ID), req.URIs)
		if err != nil {
			app.spotifyError(w, r, err)
			return
		}
		pl.SnapshotID = snap
	}
	app.forgetSpotify(token)
	respondJSON(w, http.StatusCreated, pl)
}

// SpotifyAddTracks appends tracks to an existing playlist.
func (app *Application) SpotifyAddTracks(w http.ResponseWriter, r *http.Request) {
	token, ok := app.accessToken(w, r)
	if !ok {
		return
	}
	var req struct {
		URIs []string `json:"uris"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.URIs) == 0 {
		respondJSONError(w, http.StatusBadRequest, "uris is required")
		return
	}
	snap, err := app.Relay.Client(r.Context(), token).AddTracks(r.Context(), r.PathValue("id"), req.URIs)
	if err != nil {
		app.spotifyError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"snapshot_id": snap})
}

// SpotifyFollow follows artists for the token owner.
func (app *Application) SpotifyFollow(w http.ResponseWriter, r *http.Request) {
	token, ok := app.accessToken(w, r)
	if !ok {
		return
	}
	var req struct {
		IDs []libspotify.ID `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.IDs) == 0 {
		respondJSONError(w, http.StatusBadRequest, "ids is required")
		return
	}
	ids := make([]string, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = string(id)
	}
	if err := app.Relay.Client(r.Context(), token).FollowArtists(r.Context(), ids...); err != nil {
		app.spotifyError(w, r, err)
		return
	}
	app.forgetSpotify(token)
	w.WriteHeader(http.StatusNoContent)
}

// forgetSpotify drops cached reads for token after a write.
func (app *Application) forgetSpotify(token string) {
	if app.Cache == nil {
		return
	}
	app.Cache.ClearPattern(cache.SpotifyPattern(token))
}
