package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FetcherHTTP    = "http"
	FetcherBrowser = "browser"
)

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Scraper   ScraperConfig
	Selectors SelectorConfig
	Redis     RedisConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig holds the expected value of the numeric "token" request header.
type AuthConfig struct {
	Token    int64
	HasToken bool
}

type StorageConfig struct {
	BasePath string
}

type ScraperConfig struct {
	Fetcher         string
	UserAgent       string
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	RateLimitMin    time.Duration
	RateLimitMax    time.Duration
	PageTimeout     time.Duration
	MaxPages        int
	PageConcurrency int
	StopOnEmptyPage bool
	DownloadImages  bool
	Headless        bool
}

type SelectorConfig struct {
	Item      string
	Name      string
	Price     string
	Image     string
	ImageAttr string
}

// RedisConfig is optional; an empty Addr disables the stream notifier.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real env vars win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Minute),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			BasePath: getEnv("BASE_PATH", "."),
		},
		Scraper: ScraperConfig{
			Fetcher:         strings.ToLower(getEnv("FETCHER", FetcherHTTP)),
			UserAgent:       getEnv("SCRAPER_USER_AGENT", defaultUserAgent),
			Timeout:         getEnvDuration("SCRAPER_TIMEOUT", 30*time.Second),
			MaxRetries:      getEnvInt("SCRAPER_MAX_RETRIES", 3),
			RetryDelay:      getEnvDuration("SCRAPER_RETRY_DELAY", 3*time.Second),
			RateLimitMin:    getEnvDuration("SCRAPER_RATE_LIMIT_MIN", 0),
			RateLimitMax:    getEnvDuration("SCRAPER_RATE_LIMIT_MAX", 0),
			PageTimeout:     getEnvDuration("SCRAPER_PAGE_TIMEOUT", 2*time.Minute),
			MaxPages:        getEnvInt("SCRAPER_MAX_PAGES", 100),
			PageConcurrency: getEnvInt("SCRAPER_PAGE_CONCURRENCY", 1),
			StopOnEmptyPage: getEnvBool("SCRAPER_STOP_ON_EMPTY_PAGE", false),
			DownloadImages:  getEnvBool("SCRAPER_DOWNLOAD_IMAGES", true),
			Headless:        getEnvBool("BROWSER_HEADLESS", true),
		},
		Selectors: SelectorConfig{
			Item:      getEnv("SELECTOR_ITEM", "ul.products > li.product"),
			Name:      getEnv("SELECTOR_NAME", ".woocommerce-loop-product__title"),
			Price:     getEnv("SELECTOR_PRICE", ".price bdi"),
			Image:     getEnv("SELECTOR_IMAGE", "img"),
			ImageAttr: getEnv("SELECTOR_IMAGE_ATTR", "src"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Stream:   getEnv("REDIS_STREAM", "stream:scrape_runs"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if raw, ok := os.LookupEnv("API_TOKEN"); ok && raw != "" {
		token, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("API_TOKEN must be a number: %w", err)
		}
		cfg.Auth = AuthConfig{Token: token, HasToken: true}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Storage.BasePath == "" {
		return fmt.Errorf("BASE_PATH is required")
	}

	if c.Scraper.Fetcher != FetcherHTTP && c.Scraper.Fetcher != FetcherBrowser {
		return fmt.Errorf("FETCHER must be %q or %q, got %q", FetcherHTTP, FetcherBrowser, c.Scraper.Fetcher)
	}

	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES cannot be negative")
	}

	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("SCRAPER_MAX_PAGES must be at least 1")
	}

	if c.Scraper.PageConcurrency < 1 {
		return fmt.Errorf("SCRAPER_PAGE_CONCURRENCY must be at least 1")
	}

	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax && c.Scraper.RateLimitMax != 0 {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}

	if c.Selectors.Item == "" {
		return fmt.Errorf("SELECTOR_ITEM is required")
	}

	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
