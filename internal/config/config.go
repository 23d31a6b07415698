package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Ingestion configuration
	Ingest IngestConfig

	// Batch scoring configuration
	Batch BatchConfig

	// External provider configuration
	Scorer ScorerConfig
	Search SearchConfig

	// Reconciliation configuration
	Reconcile ReconcileConfig

	// Reporting configuration
	Stats StatsConfig

	// Logging configuration
	Log LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// IngestConfig holds article ingestion settings
type IngestConfig struct {
	AllowedURLPrefixes []string
	Keywords           []string
	MinTitleLength     int
	MaxContentLength   int
	MaxPerKeyword      int
}

// BatchConfig holds batch job lifecycle settings
type BatchConfig struct {
	MaxSize       int
	MaxRetries    int
	TTL           time.Duration
	RetryBackoff  time.Duration
	CycleInterval time.Duration
	PollWorkers   int
}

// ScorerConfig holds scoring provider settings
type ScorerConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SearchConfig holds news search provider settings
type SearchConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// ReconcileConfig holds reconciliation settings
type ReconcileConfig struct {
	AverageEpsilon float64
}

// StatsConfig holds reporting settings
type StatsConfig struct {
	HighScoreThreshold int
	HighScoreDays      int
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
}

// defaultKeywords are the crawl keywords used when none are configured;
// they target headline phrasings that correlate with clickbait titles.
var defaultKeywords = []string{
	"논란",
	"충격",
	"경악",
	"발칵",
	"최근 한 온라인 커뮤니티",
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 300*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "clickbait_pipeline"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
		},
		Ingest: IngestConfig{
			AllowedURLPrefixes: getSliceEnv("INGEST_ALLOWED_URL_PREFIXES",
				[]string{"https://n.news.naver.com", "https://m.entertain.naver.com"}),
			Keywords:         getSliceEnv("INGEST_KEYWORDS", defaultKeywords),
			MinTitleLength:   getIntEnv("INGEST_MIN_TITLE_LENGTH", 9),
			MaxContentLength: getIntEnv("INGEST_MAX_CONTENT_LENGTH", 700),
			MaxPerKeyword:    getIntEnv("INGEST_MAX_PER_KEYWORD", 100),
		},
		Batch: BatchConfig{
			MaxSize:       getIntEnv("BATCH_MAX_SIZE", 800),
			MaxRetries:    getIntEnv("BATCH_MAX_RETRIES", 3),
			TTL:           getDurationEnv("BATCH_TTL", 24*time.Hour),
			RetryBackoff:  getDurationEnv("BATCH_RETRY_BACKOFF", time.Minute),
			CycleInterval: getDurationEnv("BATCH_CYCLE_INTERVAL", 2*time.Minute),
			PollWorkers:   getIntEnv("BATCH_POLL_WORKERS", 4),
		},
		Scorer: ScorerConfig{
			BaseURL: getEnv("SCORER_BASE_URL", ""),
			APIKey:  getEnv("SCORER_API_KEY", ""),
			Timeout: getDurationEnv("SCORER_TIMEOUT", 60*time.Second),
		},
		Search: SearchConfig{
			BaseURL:      getEnv("SEARCH_BASE_URL", ""),
			ClientID:     getEnv("SEARCH_CLIENT_ID", ""),
			ClientSecret: getEnv("SEARCH_CLIENT_SECRET", ""),
			Timeout:      getDurationEnv("SEARCH_TIMEOUT", 20*time.Second),
		},
		Reconcile: ReconcileConfig{
			AverageEpsilon: getFloatEnv("RECONCILE_AVG_EPSILON", 0.01),
		},
		Stats: StatsConfig{
			HighScoreThreshold: getIntEnv("STATS_HIGH_SCORE_THRESHOLD", 80),
			HighScoreDays:      getIntEnv("STATS_HIGH_SCORE_DAYS", 7),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Batch.MaxSize <= 0 {
		return fmt.Errorf("BATCH_MAX_SIZE must be positive")
	}
	if c.Batch.MaxRetries < 0 {
		return fmt.Errorf("BATCH_MAX_RETRIES must not be negative")
	}
	if c.Batch.TTL <= 0 {
		return fmt.Errorf("BATCH_TTL must be positive")
	}
	if len(c.Ingest.AllowedURLPrefixes) == 0 {
		return fmt.Errorf("INGEST_ALLOWED_URL_PREFIXES must not be empty")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
