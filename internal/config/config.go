// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

const envPrefix = "ADPANEL_"

// Required keys, reported together when missing.
var requiredKeys = []string{
	"ADPANEL_META_CLIENT_ID",
	"ADPANEL_META_CLIENT_SECRET",
	"ADPANEL_TIKTOK_CLIENT_ID",
	"ADPANEL_TIKTOK_CLIENT_SECRET",
	"ADPANEL_PUBLIC_BASE_URL",
	"ADPANEL_FRONTEND_BASE_URL",
	"ADPANEL_SECRET_KEY",
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	MetaClientID       string
	MetaClientSecret   string
	MetaAdAccountID    string
	TikTokClientID     string
	TikTokClientSecret string
	TikTokAdvertiserID string

	// PublicBaseURL is the externally reachable origin of this service; OAuth
	// callbacks are <PublicBaseURL>/callback/<provider>.
	PublicBaseURL string
	// FrontendBaseURL is where the browser lands after an OAuth callback.
	FrontendBaseURL string

	// SecretKey is the AES-256 key for credential encryption at rest.
	SecretKey []byte

	ListenAddr        string
	DBPath            string
	RefreshInterval   time.Duration
	RefreshMaxRetries int
	UpstreamTimeout   time.Duration
	UpstreamRate      float64
	CookieSecure      bool
}

// String describes the non-secret settings for startup logs.
func (c *Config) String() string {
	return fmt.Sprintf("listen=%s db=%s public=%s frontend=%s refresh=%s",
		c.ListenAddr, c.DBPath, c.PublicBaseURL, c.FrontendBaseURL, c.RefreshInterval)
}

// Load reads .env from the working directory when present, then loads the
// configuration from the environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile reads the dotenv file at path when it exists, then loads the
// configuration from the environment. Variables already set in the
// environment take precedence over the file. All missing required keys are
// reported in a single *model.ConfigError.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &model.ConfigError{Key: strings.Join(missing, ", "), Reason: "required"}
	}

	cfg := &Config{
		MetaClientID:       os.Getenv("ADPANEL_META_CLIENT_ID"),
		MetaClientSecret:   os.Getenv("ADPANEL_META_CLIENT_SECRET"),
		MetaAdAccountID:    strings.TrimSpace(os.Getenv("ADPANEL_META_AD_ACCOUNT_ID")),
		TikTokClientID:     os.Getenv("ADPANEL_TIKTOK_CLIENT_ID"),
		TikTokClientSecret: os.Getenv("ADPANEL_TIKTOK_CLIENT_SECRET"),
		TikTokAdvertiserID: strings.TrimSpace(os.Getenv("ADPANEL_TIKTOK_ADVERTISER_ID")),
		ListenAddr:         "127.0.0.1:8080",
		DBPath:             "adpanel.db",
		RefreshInterval:    15 * time.Minute,
		RefreshMaxRetries:  3,
		UpstreamTimeout:    15 * time.Second,
		UpstreamRate:       5,
	}

	var err error
	if cfg.PublicBaseURL, err = baseURL("ADPANEL_PUBLIC_BASE_URL"); err != nil {
		return nil, err
	}
	if cfg.FrontendBaseURL, err = baseURL("ADPANEL_FRONTEND_BASE_URL"); err != nil {
		return nil, err
	}

	key, err := hex.DecodeString(strings.TrimSpace(os.Getenv("ADPANEL_SECRET_KEY")))
	if err != nil || len(key) != 32 {
		return nil, &model.ConfigError{Key: "ADPANEL_SECRET_KEY", Reason: "must be 64 hex characters (32 bytes)"}
	}
	cfg.SecretKey = key

	if v, ok := os.LookupEnv("ADPANEL_LISTEN_ADDR"); ok && v != "" {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("ADPANEL_DB_PATH"); ok && v != "" {
		cfg.DBPath = v
	}
	if cfg.RefreshInterval, err = duration("ADPANEL_REFRESH_INTERVAL", cfg.RefreshInterval, 0); err != nil {
		return nil, err
	}
	if cfg.UpstreamTimeout, err = duration("ADPANEL_UPSTREAM_TIMEOUT", cfg.UpstreamTimeout, time.Second); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("ADPANEL_UPSTREAM_RATE"); ok && v != "" {
		rate, perr := strconv.ParseFloat(v, 64)
		if perr != nil || rate <= 0 {
			return nil, &model.ConfigError{Key: "ADPANEL_UPSTREAM_RATE", Reason: fmt.Sprintf("must be a positive number, got %q", v)}
		}
		cfg.UpstreamRate = rate
	}

	if v, ok := os.LookupEnv("ADPANEL_REFRESH_MAX_RETRIES"); ok && v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil || n < 0 {
			return nil, &model.ConfigError{Key: "ADPANEL_REFRESH_MAX_RETRIES", Reason: fmt.Sprintf("must be a non-negative integer, got %q", v)}
		}
		cfg.RefreshMaxRetries = n
	}

	if v, ok := os.LookupEnv("ADPANEL_COOKIE_SECURE"); ok && v != "" {
		secure, perr := strconv.ParseBool(v)
		if perr != nil {
			return nil, &model.ConfigError{Key: "ADPANEL_COOKIE_SECURE", Reason: fmt.Sprintf("must be a boolean, got %q", v)}
		}
		cfg.CookieSecure = secure
	}

	return cfg, nil
}

// baseURL validates an absolute http(s) URL and strips any trailing slash.
func baseURL(key string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &model.ConfigError{Key: key, Reason: fmt.Sprintf("must be an absolute http(s) URL, got %q", raw)}
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", &model.ConfigError{Key: key, Reason: "must not carry a query or fragment"}
	}
	return strings.TrimRight(raw, "/"), nil
}

// duration parses key as a Go duration no smaller than floor. Zero is
// accepted only when floor is zero.
func duration(key string, def, floor time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &model.ConfigError{Key: key, Reason: fmt.Sprintf("invalid duration %q", v)}
	}
	if d < floor || d < 0 {
		return 0, &model.ConfigError{Key: key, Reason: fmt.Sprintf("must be at least %s, got %s", floor, d)}
	}
	return d, nil
}
