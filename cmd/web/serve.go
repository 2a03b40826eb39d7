package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"SonicMirror/pkg/cache"
	"SonicMirror/pkg/config"
	"SonicMirror/pkg/db"
	"SonicMirror/pkg/gemini"
	"SonicMirror/pkg/handlers"
	"SonicMirror/pkg/llm"
	"SonicMirror/pkg/ratelimit"
	"SonicMirror/pkg/spotify"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = 10 * time.Minute
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides PORT)")
	return cmd
}

// serve runs the server until ctx is cancelled and then drains in-flight
// requests.
func serve(ctx context.Context, cfg config.Config) error {
	app, cleanup, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           app.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// buildApp wires storage, the cache, the language model gateway and the
// Spotify clients from cfg. The returned cleanup closes what was opened.
func buildApp(ctx context.Context, cfg config.Config) (*handlers.Application, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var database *db.DB
	switch cfg.StorageDriver {
	case db.DriverSQLite, db.DriverPostgres:
		d, err := db.Open(cfg.StorageDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db init: %w", err)
		}
		database = d
		closers = append(closers, func() { d.Close() })
	case "none":
		log.Warn("storage disabled, sessions, shares and insights are unavailable")
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	cacheOpts := []cache.Option{cache.WithLogger(log.StandardLogger())}
	switch cfg.CacheMirror {
	case "db":
		if database != nil {
			cacheOpts = append(cacheOpts, cache.WithMirror(database))
			purgeCtx, cancel := context.WithCancel(ctx)
			closers = append(closers, cancel)
			go purgeExpired(purgeCtx, database)
		}
	case "redis":
		rdb, err := cache.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { rdb.Close() })
		cacheOpts = append(cacheOpts, cache.WithMirror(cache.NewRedisMirror(rdb, cache.DefaultRedisPrefix)))
	}
	c := cache.New(cacheOpts...)
	if n, err := c.Restore(ctx); err != nil {
		log.WithError(err).Warn("restore cache")
	} else if n > 0 {
		log.WithField("entries", n).Info("cache restored")
	}

	var provider llm.Provider
	if cfg.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY not set, generation features are disabled")
	} else {
		g, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		provider = g
	}
	limiter := ratelimit.New()
	gwOpts := []llm.Option{llm.WithLogger(log.StandardLogger())}
	if database != nil {
		gwOpts = append(gwOpts, llm.WithRecorder(database))
	}
	gw := llm.New(provider, limiter, llm.Config{
		MaxCalls:       cfg.LLMRateLimit,
		Window:         cfg.LLMRateWindow,
		MaxAttempts:    cfg.LLMMaxRetries,
		AttemptTimeout: cfg.LLMAttemptTimeout,
	}, gwOpts...)

	app := &handlers.Application{
		Gateway:         gw,
		Limiter:         limiter,
		Relay:           spotify.NewRelay(cfg.SpotifyAPIURL, nil),
		OAuth:           spotify.NewOAuth(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRedirectURL, cfg.SpotifyAccountsURL, nil),
		DB:              database,
		Cache:           c,
		SignKey:         []byte(cfg.SigningKey),
		FrontendURL:     cfg.FrontendURL,
		LLMCacheTTL:     cfg.LLMCacheTTL,
		SpotifyCacheTTL: cfg.SpotifyCacheTTL,
	}
	return app, cleanup, nil
}

// purgeExpired removes expired mirror rows so the cache table does not grow
// without bound.
func purgeExpired(ctx context.Context, d *db.DB) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := d.PurgeExpiredCache(ctx, now)
			if err != nil {
				log.WithError(err).Warn("purge expired cache rows")
				continue
			}
			if n > 0 {
				log.WithField("rows", n).Debug("purged expired cache rows")
			}
		}
	}
}
