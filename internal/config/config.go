package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	// Backend API
	BackendBaseURL     string        `toml:"backend_base_url"`
	BackendAPIKey      string        `toml:"backend_api_key"`
	RequestTimeout     time.Duration `toml:"request_timeout"`
	UploadTimeout      time.Duration `toml:"upload_timeout"`
	BackendRateLimit   float64       `toml:"backend_rate_limit"` // requests per second, 0 = unlimited
	DefaultAspectRatio string        `toml:"default_aspect_ratio"`

	// Video polling
	PollInterval time.Duration `toml:"poll_interval"`
	ProgressTick time.Duration `toml:"progress_tick"`
	PollTimeout  time.Duration `toml:"poll_timeout"`

	// Preferences
	PrefsPath   string `toml:"prefs_path"`
	DatabaseURL string `toml:"database_url"`

	// Supabase
	SupabaseURL           string `toml:"supabase_url"`
	SupabaseKey           string `toml:"supabase_key"`
	SupabaseStorageBucket string `toml:"supabase_storage_bucket"`
	SupabaseEventsTable   string `toml:"supabase_events_table"`

	// Server
	Port           string   `toml:"port"`
	Environment    string   `toml:"environment"`
	JWTSecret      string   `toml:"jwt_secret"`
	AllowedOrigins []string `toml:"allowed_origins"`

	// Logging
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Load reads an optional .env file, then the environment, then an optional
// TOML overlay named by WIZARD_CONFIG. Values in the overlay win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BackendBaseURL:     getEnv("API_BASE_URL", "http://localhost:8000/api"),
		BackendAPIKey:      getEnv("API_KEY", ""),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),
		UploadTimeout:      getEnvDuration("UPLOAD_TIMEOUT", 5*time.Minute),
		BackendRateLimit:   getEnvFloat("BACKEND_RATE_LIMIT", 0),
		DefaultAspectRatio: getEnv("DEFAULT_ASPECT_RATIO", "16:9"),

		PollInterval: getEnvDuration("VIDEO_POLL_INTERVAL", 3*time.Second),
		ProgressTick: getEnvDuration("VIDEO_PROGRESS_TICK", time.Second),
		PollTimeout:  getEnvDuration("VIDEO_POLL_TIMEOUT", 2*time.Hour),

		PrefsPath:   getEnv("PREFS_PATH", defaultPrefsPath()),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseKey:           getEnv("SUPABASE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "merged-images"),
		SupabaseEventsTable:   getEnv("SUPABASE_EVENTS_TABLE", "wizard_events"),

		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	if path := os.Getenv("WIZARD_CONFIG"); path != "" {
		if err := cfg.Overlay(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Overlay decodes a TOML file on top of the current values. Durations may
// be written as strings ("3s", "2h").
func (c *Config) Overlay(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.BackendBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	u, err := url.Parse(c.BackendBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.BackendBaseURL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("VIDEO_POLL_INTERVAL must be positive")
	}
	if c.ProgressTick <= 0 {
		return fmt.Errorf("VIDEO_PROGRESS_TICK must be positive")
	}
	if c.BackendRateLimit < 0 {
		return fmt.Errorf("BACKEND_RATE_LIMIT must not be negative")
	}
	if (c.SupabaseURL == "") != (c.SupabaseKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY must be set together")
	}
	return nil
}

// SupabaseEnabled reports whether the optional Supabase integrations are configured.
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultPrefsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".slide2video-prefs.json"
	}
	return filepath.Join(dir, "slide2video", "prefs.json")
}
