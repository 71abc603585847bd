package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env        string `yaml:"env"`
	ListenAddr string `yaml:"listen_addr"`

	Store       string `yaml:"store"` // auto|postgres|sqlite|memory
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`

	Provider        string        `yaml:"provider"` // gemini|fake
	GeminiAPIKey    string        `yaml:"-"`
	GeminiModel     string        `yaml:"gemini_model"`
	GeminiBaseURL   string        `yaml:"gemini_base_url"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	ProviderRetries int           `yaml:"provider_retries"`
	LifetimeStats   bool          `yaml:"lifetime_stats"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text|json
}

const (
	StoreAuto     = "auto"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"

	ProviderGemini = "gemini"
	ProviderFake   = "fake"
)

func Defaults() Config {
	return Config{
		Env:             "development",
		ListenAddr:      ":8080",
		Store:           StoreAuto,
		SQLitePath:      "sentinel.db",
		Provider:        ProviderGemini,
		GeminiModel:     "gemini-3-flash-preview",
		ProviderTimeout: 60 * time.Second,
		ProviderRetries: 2,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load builds the configuration from defaults, then an optional YAML file
// named by CONFIG_FILE, then the environment. A .env file in the working
// directory is loaded into the environment first if present; variables
// already set win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load without the .env step; path may be empty. Overrides run
// after the environment is applied and before validation.
func LoadFile(path string, overrides ...func(*Config)) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	for _, o := range overrides {
		o(&cfg)
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	cfg.Env = getenv("APP_ENV", cfg.Env)
	cfg.ListenAddr = getenv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.Store = strings.ToLower(getenv("STORE", cfg.Store))
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.SQLitePath = getenv("SQLITE_PATH", cfg.SQLitePath)
	cfg.Provider = strings.ToLower(getenv("PROVIDER", cfg.Provider))
	cfg.GeminiAPIKey = getenv("GEMINI_API_KEY", getenv("API_KEY", cfg.GeminiAPIKey))
	cfg.GeminiModel = getenv("GEMINI_MODEL", cfg.GeminiModel)
	cfg.GeminiBaseURL = getenv("GEMINI_BASE_URL", cfg.GeminiBaseURL)
	if secs := getenvInt("PROVIDER_TIMEOUT_SECONDS", -1); secs > 0 {
		cfg.ProviderTimeout = time.Duration(secs) * time.Second
	}
	cfg.ProviderRetries = getenvInt("PROVIDER_RETRIES", cfg.ProviderRetries)
	cfg.LifetimeStats = getenvBool("LIFETIME_STATS", cfg.LifetimeStats)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("LOG_FORMAT", cfg.LogFormat)
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return out
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return out
		}
	}
	return def
}

// ResolvedStore turns "auto" into a concrete backend: postgres when a
// database URL is configured, sqlite otherwise.
func (c Config) ResolvedStore() string {
	if c.Store != StoreAuto && c.Store != "" {
		return c.Store
	}
	if c.DatabaseURL != "" {
		return StorePostgres
	}
	return StoreSQLite
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case "", StoreAuto, StorePostgres, StoreSQLite, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.ResolvedStore() == StorePostgres && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
	}
	if c.ResolvedStore() == StoreSQLite && c.SQLitePath == "" {
		errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
	}
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("API_KEY or GEMINI_API_KEY is required for the gemini provider"))
		}
	case ProviderFake:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	if c.ProviderRetries < 0 {
		errs = append(errs, fmt.Errorf("provider retries must be >= 0, got %d", c.ProviderRetries))
	}
	return errors.Join(errs...)
}
