package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseDriver   string
	DatabaseURL      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	ChromeBinary string
	// DevToolsURL points at an already running browser; when set no local
	// binary is required.
	DevToolsURL string
	Headless    bool

	MinDelay         time.Duration
	MaxDelay         time.Duration
	BlockCooldownMin time.Duration
	BlockCooldownMax time.Duration
	BlockRetries     int
	MaxRetries       int
	MaxPages         int
	PageTimeout      time.Duration
	Concurrency      int
	RunTimeout       time.Duration
	SelectorsDir     string
	CSVOutputPath    string

	ModelPath      string
	APIAddr        string
	APIRateLimit   float64
	TelegramToken  string
	PushgatewayURL string

	LogFormat string
	Debug     bool
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		DatabaseDriver:   getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "postgres123"),
		PostgresDB:       getEnv("POSTGRES_DB", "caradvisor_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		ChromeBinary: getEnv("CHROME_BINARY", ""),
		DevToolsURL:  getEnv("CHROME_DEVTOOLS_URL", ""),
		Headless:     getEnvBool("HEADLESS", true),

		MinDelay:         getEnvMillis("SCRAPE_MIN_DELAY_MS", 2000),
		MaxDelay:         getEnvMillis("SCRAPE_MAX_DELAY_MS", 5000),
		BlockCooldownMin: getEnvMillis("BLOCK_COOLDOWN_MIN_MS", 10000),
		BlockCooldownMax: getEnvMillis("BLOCK_COOLDOWN_MAX_MS", 15000),
		BlockRetries:     getEnvInt("BLOCK_RETRIES", 3),
		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		MaxPages:         getEnvInt("MAX_PAGES", 100),
		PageTimeout:      time.Duration(getEnvInt("PAGE_TIMEOUT_SEC", 60)) * time.Second,
		Concurrency:      getEnvInt("SCRAPE_CONCURRENCY", 2),
		RunTimeout:       time.Duration(getEnvInt("RUN_TIMEOUT_MIN", 0)) * time.Minute,
		SelectorsDir:     getEnv("SELECTORS_DIR", ""),
		CSVOutputPath:    getEnv("CSV_OUTPUT_PATH", ""),

		ModelPath:      getEnv("MODEL_PATH", "./model/car_price_model.json"),
		APIAddr:        getEnv("API_ADDR", ":8000"),
		APIRateLimit:   getEnvFloat("API_RATE_LIMIT", 10),
		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),

		LogFormat: getEnv("LOG_FORMAT", "text"),
		Debug:     getEnvBool("DEBUG", false),
	}
}

// DSN returns the datastore connection string. DATABASE_URL wins over the
// individual POSTGRES_* settings.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// Validate reports the first incoherent setting.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres":
	case "sqlite":
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL must name a file for the sqlite driver", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported database driver %q", ErrInvalid, c.DatabaseDriver)
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return fmt.Errorf("%w: scrape delay range [%v, %v]", ErrInvalid, c.MinDelay, c.MaxDelay)
	}
	if c.BlockCooldownMin < 0 || c.BlockCooldownMax < c.BlockCooldownMin {
		return fmt.Errorf("%w: block cooldown range [%v, %v]", ErrInvalid, c.BlockCooldownMin, c.BlockCooldownMax)
	}
	if c.BlockRetries < 0 {
		return fmt.Errorf("%w: block retries cannot be negative", ErrInvalid)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max retries must be at least 1", ErrInvalid)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("%w: max pages cannot be negative", ErrInvalid)
	}
	if c.PageTimeout <= 0 {
		return fmt.Errorf("%w: page timeout must be positive", ErrInvalid)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1", ErrInvalid)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("%w: run timeout cannot be negative", ErrInvalid)
	}
	if c.APIRateLimit <= 0 {
		return fmt.Errorf("%w: api rate limit must be positive", ErrInvalid)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: log format must be text or json", ErrInvalid)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}
