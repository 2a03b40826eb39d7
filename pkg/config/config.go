// Package config loads server settings from the environment. A .env file in
// the working directory, when present, is read first; variables already set
// in the environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port        int
	FrontendURL string

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURL  string
	SpotifyAPIURL       string
	SpotifyAccountsURL  string

	GeminiAPIKey string
	GeminiModel  string

	LLMRateLimit      int
	LLMRateWindow     time.Duration
	LLMMaxRetries     int
	LLMAttemptTimeout time.Duration
	LLMCacheTTL       time.Duration
	SpotifyCacheTTL   time.Duration

	SigningKey string

	StorageDriver string
	DatabaseURL   string
	CacheMirror   string
	RedisURL      string

	LogLevel  string
	LogFormat string
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		Port:               4000,
		FrontendURL:        "http://localhost:3000",
		SpotifyRedirectURL: "http://localhost:4000/auth/callback",
		GeminiModel:        "gemini-2.0-flash",
		LLMRateLimit:       10,
		LLMRateWindow:      60000 * time.Millisecond,
		LLMMaxRetries:      3,
		LLMAttemptTimeout:  30 * time.Second,
		LLMCacheTTL:        30 * time.Minute,
		SpotifyCacheTTL:    5 * time.Minute,
		StorageDriver:      "sqlite",
		DatabaseURL:        "sonicmirror.db",
		CacheMirror:        "db",
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load reads .env (if any) and the environment on top of Default.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, which has the signature of
// os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	num("PORT", &c.Port)
	str("FRONTEND_URL", &c.FrontendURL)
	str("SPOTIFY_CLIENT_ID", &c.SpotifyClientID)
	str("SPOTIFY_CLIENT_SECRET", &c.SpotifyClientSecret)
	str("SPOTIFY_REDIRECT_URL", &c.SpotifyRedirectURL)
	str("SPOTIFY_API_URL", &c.SpotifyAPIURL)
	str("SPOTIFY_ACCOUNTS_URL", &c.SpotifyAccountsURL)
	str("GEMINI_API_KEY", &c.GeminiAPIKey)
	str("GEMINI_MODEL", &c.GeminiModel)
	num("LLM_RATE_LIMIT", &c.LLMRateLimit)
	windowMs := int(c.LLMRateWindow / time.Millisecond)
	num("LLM_RATE_WINDOW_MS", &windowMs)
	c.LLMRateWindow = time.Duration(windowMs) * time.Millisecond
	num("LLM_MAX_RETRIES", &c.LLMMaxRetries)
	dur("LLM_ATTEMPT_TIMEOUT", &c.LLMAttemptTimeout)
	dur("LLM_CACHE_TTL", &c.LLMCacheTTL)
	dur("SPOTIFY_CACHE_TTL", &c.SpotifyCacheTTL)
	str("SIGNING_KEY", &c.SigningKey)
	str("STORAGE_DRIVER", &c.StorageDriver)
	str("DATABASE_URL", &c.DatabaseURL)
	str("CACHE_MIRROR", &c.CacheMirror)
	str("REDIS_URL", &c.RedisURL)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	c.StorageDriver = strings.ToLower(c.StorageDriver)
	c.CacheMirror = strings.ToLower(c.CacheMirror)
	return c, errors.Join(errs...)
}

// Validate checks the settings the serve command cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.SpotifyClientID == "" || c.SpotifyClientSecret == "" {
		errs = append(errs, errors.New("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set"))
	}
	if c.SigningKey == "" {
		errs = append(errs, errors.New("SIGNING_KEY must be set"))
	}
	if c.LLMRateLimit <= 0 || c.LLMRateWindow <= 0 {
		errs = append(errs, errors.New("LLM_RATE_LIMIT and LLM_RATE_WINDOW_MS must be positive"))
	}
	if c.LLMMaxRetries <= 0 {
		errs = append(errs, errors.New("LLM_MAX_RETRIES must be positive"))
	}
	switch c.StorageDriver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q must be sqlite, postgres or none", c.StorageDriver))
	}
	switch c.CacheMirror {
	case "db", "none":
	case "redis":
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL must be set when CACHE_MIRROR=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("CACHE_MIRROR %q must be db, redis or none", c.CacheMirror))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address for Port.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// ConfigureLogging applies LogLevel and LogFormat to logger.
func (c Config) ConfigureLogging(logger *logrus.Logger) error {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	switch c.LogFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}
