package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultHTTPAddr       = ":8080"
	DefaultBackendURL     = "https://fue-vote-backend.onrender.com"
	DefaultPollInterval   = 5 * time.Second
	DefaultReconnectDelay = 2 * time.Second
	DefaultHTTPTimeout    = 10 * time.Second
	DefaultLogLevel       = "info"
	DefaultAuditLimit     = 200
)

type Config struct {
	HTTPAddr       string
	BackendURL     string
	BackendWSURL   string
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	HTTPTimeout    time.Duration
	DatabaseURL    string
	LogLevel       string
	Dev            bool
	AuditLimit     int
}

// Load reads an optional .env file, then the process environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset keys.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		HTTPAddr:    or(getenv("HTTP_ADDR"), DefaultHTTPAddr),
		BackendURL:  strings.TrimRight(or(getenv("BACKEND_URL"), DefaultBackendURL), "/"),
		DatabaseURL: getenv("DATABASE_URL"),
		LogLevel:    strings.ToLower(or(getenv("LOG_LEVEL"), DefaultLogLevel)),
	}

	var err error
	if cfg.PollInterval, err = duration(getenv, "POLL_INTERVAL", DefaultPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.ReconnectDelay, err = duration(getenv, "RECONNECT_DELAY", DefaultReconnectDelay); err != nil {
		return Config{}, err
	}
	if cfg.HTTPTimeout, err = duration(getenv, "HTTP_TIMEOUT", DefaultHTTPTimeout); err != nil {
		return Config{}, err
	}

	if v := getenv("DEV"); v != "" {
		if cfg.Dev, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("invalid DEV env variable %q", v)
		}
	}

	cfg.AuditLimit = DefaultAuditLimit
	if v := getenv("AUDIT_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid AUDIT_LIMIT env variable %q", v)
		}
		cfg.AuditLimit = n
	}

	cfg.BackendWSURL = getenv("BACKEND_WS_URL")
	if cfg.BackendWSURL == "" {
		if cfg.BackendWSURL, err = deriveWSURL(cfg.BackendURL); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// deriveWSURL maps http(s)://host to ws(s)://host/ws.
func deriveWSURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid BACKEND_URL %q", base)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported BACKEND_URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s env variable %q", key, v)
	}
	return d, nil
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
