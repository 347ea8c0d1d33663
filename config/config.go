package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	TokenStoreFile   = "file"
	TokenStoreRedis  = "redis"
	TokenStoreMemory = "memory"
)

type Config struct {
	APIURL          string
	TokenStore      string
	TokenFile       string
	RedisAddr       string
	RedisKey        string
	RequestTimeout  time.Duration
	HistoryPageSize int
	BreakerFailures uint32
	BreakerCooldown time.Duration
	LogLevel        logrus.Level
	LogJSON         bool
}

type StubConfig struct {
	Addr      string
	SecretKey []byte
	TokenTTL  time.Duration
	LogLevel  logrus.Level
	LogJSON   bool
}

// loadDotenv reads the given files (default .env) into the environment.
// Missing files are fine; variables already set win.
func loadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func Load(files ...string) (*Config, error) {
	if err := loadDotenv(files...); err != nil {
		return nil, err
	}

	cfg := &Config{
		APIURL:     strings.TrimRight(env("RESTRO_API_URL", "http://localhost:5000/api"), "/"),
		TokenStore: strings.ToLower(env("RESTRO_TOKEN_STORE", TokenStoreFile)),
		TokenFile:  env("RESTRO_TOKEN_FILE", defaultTokenFile()),
		RedisAddr:  env("RESTRO_REDIS_ADDR", "localhost:6379"),
		RedisKey:   env("RESTRO_REDIS_KEY", "restro:access_token"),
	}

	var err error
	if cfg.RequestTimeout, err = durationEnv("RESTRO_REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.BreakerCooldown, err = durationEnv("RESTRO_BREAKER_COOLDOWN", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.HistoryPageSize, err = intEnv("RESTRO_HISTORY_PAGE_SIZE", 5); err != nil {
		return nil, err
	}
	failures, err := intEnv("RESTRO_BREAKER_FAILURES", 5)
	if err != nil {
		return nil, err
	}
	cfg.BreakerFailures = uint32(failures)
	if cfg.LogLevel, cfg.LogJSON, err = logEnv(); err != nil {
		return nil, err
	}

	switch cfg.TokenStore {
	case TokenStoreFile, TokenStoreRedis, TokenStoreMemory:
	default:
		return nil, fmt.Errorf("RESTRO_TOKEN_STORE must be file, redis or memory, got %q", cfg.TokenStore)
	}
	if cfg.TokenStore == TokenStoreFile && cfg.TokenFile == "" {
		return nil, errors.New("RESTRO_TOKEN_FILE not set and no home directory found")
	}
	return cfg, nil
}

func LoadStub(files ...string) (*StubConfig, error) {
	if err := loadDotenv(files...); err != nil {
		return nil, err
	}

	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		return nil, errors.New("JWT secret key not set")
	}
	cfg := &StubConfig{
		Addr:      env("STUB_ADDR", ":5000"),
		SecretKey: []byte(secret),
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("STUB_TOKEN_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.LogLevel, cfg.LogJSON, err = logEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds a logger writing to stderr, so log lines never mix with
// command output.
func NewLogger(level logrus.Level, json bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	if json {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := env(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := env(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func logEnv() (logrus.Level, bool, error) {
	level, err := logrus.ParseLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return 0, false, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	switch format := strings.ToLower(env("LOG_FORMAT", "text")); format {
	case "text":
		return level, false, nil
	case "json":
		return level, true, nil
	default:
		return 0, false, fmt.Errorf("LOG_FORMAT must be text or json, got %q", format)
	}
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".restro", "token")
}
