package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	// Driver is "sqlite" or "postgres"; DatabaseURL is the postgres DSN and
	// SQLitePath the on-disk database for the sqlite driver.
	Driver      string
	DatabaseURL string
	SQLitePath  string

	JWTSecret          string
	AccessTokenMinutes int

	UploadDir     string
	UploadBaseURL string
	CORSOrigins   []string
	Debug         bool

	// RedisURL enables the projection cache and the asynq notification
	// queue; empty means in-memory cache and no-op notifier.
	RedisURL string

	PageSize       int
	EditWindow     time.Duration
	TypingIdle     time.Duration
	SendRetries    int
	MaxMessageSize int
}

func Load() (*Config, error) {
	dbHost := getEnv("POSTGRES_HOST", "localhost")
	dbPort := getEnv("POSTGRES_PORT", "5432")
	dbUser := getEnv("POSTGRES_USER", "postgres")
	dbPass := getEnv("POSTGRES_PASSWORD", "postgres")
	dbName := getEnv("POSTGRES_DB", "rentline")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(dbUser, dbPass),
		Host:     fmt.Sprintf("%s:%s", dbHost, dbPort),
		Path:     dbName,
		RawQuery: "sslmode=disable",
	}

	cfg := &Config{
		AppName: getEnv("APP_NAME", "Rentline Messaging API"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 8000),

		Driver:      getEnv("DB_DRIVER", "sqlite"),
		DatabaseURL: u.String(),
		SQLitePath:  getEnv("SQLITE_PATH", "rentline.db"),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24),

		UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
		UploadBaseURL: getEnv("UPLOAD_BASE_URL", "/api/uploads"),
		Debug:         getEnvAsBool("DEBUG", true),

		RedisURL: os.Getenv("REDIS_URL"),

		PageSize:       getEnvAsInt("MESSAGE_PAGE_SIZE", 50),
		EditWindow:     time.Duration(getEnvAsInt("EDIT_WINDOW_MINUTES", 5)) * time.Minute,
		TypingIdle:     time.Duration(getEnvAsInt("TYPING_IDLE_SECONDS", 3)) * time.Second,
		SendRetries:    getEnvAsInt("SEND_MESSAGE_RETRIES", 3),
		MaxMessageSize: getEnvAsInt("MAX_MESSAGE_CHARS", 5000),
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.Driver != "sqlite" && cfg.Driver != "postgres" {
		return nil, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.Driver)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
