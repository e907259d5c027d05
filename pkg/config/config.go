package config

import (
	"errors"
	"io/fs"
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
	Cache    CacheConfig
	Metrics  MetricsConfig
	Progress ProgressConfig
	Grading  GradingConfig
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

// JWTConfig holds the shared secret used to verify tokens minted by the auth service.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig governs Redis backed read caches.
type CacheConfig struct {
	Enabled    bool
	ScaleTTL   time.Duration
	RankingTTL time.Duration
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// ProgressConfig tunes background progress regeneration.
type ProgressConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	RetryDelay        time.Duration
	CohortConcurrency int
	LockTTL           time.Duration
	RecoverOnStart    bool
}

// GradingConfig carries grading defaults resolved by the orchestration layer.
type GradingConfig struct {
	DefaultAcademicLevel string
	TieBasis             string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled:    v.GetBool("ENABLE_CACHE"),
		ScaleTTL:   parseDuration(v.GetString("SCALE_CACHE_TTL"), 30*time.Minute),
		RankingTTL: parseDuration(v.GetString("RANKING_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	cfg.Progress = ProgressConfig{
		WorkerConcurrency: v.GetInt("PROGRESS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("PROGRESS_WORKER_RETRIES"),
		RetryDelay:        parseDuration(v.GetString("PROGRESS_RETRY_DELAY"), 30*time.Second),
		CohortConcurrency: v.GetInt("PROGRESS_COHORT_CONCURRENCY"),
		LockTTL:           parseDuration(v.GetString("PROGRESS_LOCK_TTL"), time.Hour),
		RecoverOnStart:    v.GetBool("PROGRESS_RECOVER_ON_START"),
	}

	cfg.Grading = GradingConfig{
		DefaultAcademicLevel: v.GetString("DEFAULT_ACADEMIC_LEVEL"),
		TieBasis:             v.GetString("RANKING_TIE_BASIS"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_progress")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", true)
	v.SetDefault("SCALE_CACHE_TTL", "30m")
	v.SetDefault("RANKING_CACHE_TTL", "10m")
	v.SetDefault("ENABLE_METRICS", true)

	v.SetDefault("PROGRESS_WORKER_CONCURRENCY", 1)
	v.SetDefault("PROGRESS_WORKER_RETRIES", 3)
	v.SetDefault("PROGRESS_RETRY_DELAY", "30s")
	v.SetDefault("PROGRESS_COHORT_CONCURRENCY", 4)
	v.SetDefault("PROGRESS_LOCK_TTL", "1h")
	v.SetDefault("PROGRESS_RECOVER_ON_START", true)

	v.SetDefault("DEFAULT_ACADEMIC_LEVEL", "SECONDARY")
	v.SetDefault("RANKING_TIE_BASIS", "points_and_marks")
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
