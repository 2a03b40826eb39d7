package handlers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"SonicMirror/pkg/cache"
	"SonicMirror/pkg/db"
	"SonicMirror/pkg/llm"
	"SonicMirror/pkg/metrics"
	"SonicMirror/pkg/ratelimit"
	"SonicMirror/pkg/spotify"
)

// TokenExchanger performs the Spotify authorization code flow. It is
// satisfied by *spotify.OAuth and replaced by a fake in tests.
type TokenExchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Application bundles the dependencies needed by the HTTP handlers. DB may
// be nil, in which case session cookies, insights and shares are disabled.
type Application struct {
	Gateway *llm.Gateway
	Limiter *ratelimit.Limiter
	Relay   *spotify.Relay
	OAuth   TokenExchanger
	DB      *db.DB
	Cache   *cache.Cache

	// SignKey is used to sign cookies so they cannot be tampered with.
	SignKey     []byte
	FrontendURL string

	LLMCacheTTL     time.Duration
	SpotifyCacheTTL time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (app *Application) now() time.Time {
	if app.Now != nil {
		return app.Now()
	}
	return time.Now()
}

// Routes registers every endpoint and wraps the mux in the shared
// middleware.
func (app *Application) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", app.Health)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /auth/login", app.Login)
	mux.HandleFunc("GET /auth/callback", app.OAuthCallback)
	mux.HandleFunc("POST /auth/token", app.ExchangeToken)
	mux.HandleFunc("POST /auth/refresh", app.RefreshToken)
	mux.HandleFunc("POST /auth/logout", app.Logout)

	mux.HandleFunc("GET /spotify/me", app.SpotifyMe)
	mux.HandleFunc("GET /spotify/top-artists", app.SpotifyTopArtists)
	mux.HandleFunc("GET /spotify/top-tracks", app.SpotifyTopTracks)
	mux.HandleFunc("GET /spotify/recently-played", app.SpotifyRecentlyPlayed)
	mux.HandleFunc("GET /spotify/audio-features", app.SpotifyAudioFeatures)
	mux.HandleFunc("GET /spotify/genres", app.SpotifyGenres)
	mux.HandleFunc("GET /spotify/profile", app.SpotifyProfile)
	mux.HandleFunc("GET /spotify/search", app.SpotifySearch)
	mux.HandleFunc("POST /spotify/playlists", app.SpotifyCreatePlaylist)
	mux.HandleFunc("POST /spotify/playlists/{id}/tracks", app.SpotifyAddTracks)
	mux.HandleFunc("PUT /spotify/follow", app.SpotifyFollow)

	mux.HandleFunc("GET /llm/features", app.LLMFeatures)
	mux.HandleFunc("DELETE /llm/cache", app.LLMClearCache)
	mux.HandleFunc("POST /llm/{feature}", app.LLMGenerate)

	mux.HandleFunc("GET /api/insights", app.Insights)
	mux.HandleFunc("POST /api/share", app.CreateShare)
	mux.HandleFunc("GET /share/{id}", app.GetShare)

	return RequestLogger(SecurityHeaders(CORS(app.FrontendURL, mux)))
}

// Health reports whether the optional dependencies are configured.
func (app *Application) Health(w http.ResponseWriter, r *http.Request) {
	storage := "none"
	if app.DB != nil {
		storage = app.DB.Driver()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"llm":      app.Gateway.Available(),
		"provider": app.Gateway.ProviderName(),
		"storage":  storage,
	})
}
