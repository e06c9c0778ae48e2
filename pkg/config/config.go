package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Gate     GateConfig
	Sessions SessionConfig
	Reports  ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// GateConfig tunes the scan registration engine.
type GateConfig struct {
	// DedupWindow is the span after a scan during which an identical
	// repeat of the same identifier is suppressed.
	DedupWindow     time.Duration
	DedupGCInterval time.Duration
	SummaryCacheTTL time.Duration
	// ExpectedStudents / ExpectedStaff override the directory-derived
	// population used for the absent estimate. Zero means derive.
	ExpectedStudents int
	ExpectedStaff    int
}

// SessionConfig tunes scan session presentation and lifecycle.
type SessionConfig struct {
	FeedbackTTL   time.Duration
	ErrorTTL      time.Duration
	TallyLimit    int
	IdleTTL       time.Duration
	ReapInterval  time.Duration
	RadioEnabled  bool
	CameraEnabled bool
}

// ReportsConfig configures asynchronous daily report generation.
type ReportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Gate = GateConfig{
		DedupWindow:      parseDuration(v.GetString("GATE_DEDUP_WINDOW"), 3*time.Second),
		DedupGCInterval:  parseDuration(v.GetString("GATE_DEDUP_GC_INTERVAL"), time.Minute),
		SummaryCacheTTL:  parseDuration(v.GetString("GATE_SUMMARY_CACHE_TTL"), 30*time.Second),
		ExpectedStudents: v.GetInt("GATE_EXPECTED_STUDENTS"),
		ExpectedStaff:    v.GetInt("GATE_EXPECTED_STAFF"),
	}

	cfg.Sessions = SessionConfig{
		FeedbackTTL:   parseDuration(v.GetString("SESSION_FEEDBACK_TTL"), 4*time.Second),
		ErrorTTL:      parseDuration(v.GetString("SESSION_ERROR_TTL"), 6*time.Second),
		TallyLimit:    v.GetInt("SESSION_TALLY_LIMIT"),
		IdleTTL:       parseDuration(v.GetString("SESSION_IDLE_TTL"), 30*time.Minute),
		ReapInterval:  parseDuration(v.GetString("SESSION_REAP_INTERVAL"), 5*time.Minute),
		RadioEnabled:  v.GetBool("SESSION_RADIO_ENABLED"),
		CameraEnabled: v.GetBool("SESSION_CAMERA_ENABLED"),
	}

	cfg.Reports = ReportsConfig{
		Enabled:           v.GetBool("ENABLE_REPORTS"),
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "gate_access")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "sma-gate-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GATE_DEDUP_WINDOW", "3s")
	v.SetDefault("GATE_DEDUP_GC_INTERVAL", "1m")
	v.SetDefault("GATE_SUMMARY_CACHE_TTL", "30s")
	v.SetDefault("GATE_EXPECTED_STUDENTS", 0)
	v.SetDefault("GATE_EXPECTED_STAFF", 0)

	v.SetDefault("SESSION_FEEDBACK_TTL", "4s")
	v.SetDefault("SESSION_ERROR_TTL", "6s")
	v.SetDefault("SESSION_TALLY_LIMIT", 20)
	v.SetDefault("SESSION_IDLE_TTL", "30m")
	v.SetDefault("SESSION_REAP_INTERVAL", "5m")
	v.SetDefault("SESSION_RADIO_ENABLED", true)
	v.SetDefault("SESSION_CAMERA_ENABLED", true)

	v.SetDefault("ENABLE_REPORTS", false)
	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
