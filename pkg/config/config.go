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

// Sync targets supported by the external calendar push.
const (
	SyncTargetGoogle = "google"
	SyncTargetICS    = "ics"
)

// Sync scopes.
const (
	SyncScopeWindow = "window"
	SyncScopeAll    = "all"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	LMS         LMSConfig
	Syllabus    SyllabusConfig
	Calendar    CalendarConfig
	Aggregation AggregationConfig
	Sync        SyncConfig
	Storage     StorageConfig
	Vault       VaultConfig
	Sessions    SessionConfig
	Jobs        JobsConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	AutoMigrate   bool
	MigrationsDir string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LMSConfig points at the Canvas-compatible LMS REST API.
type LMSConfig struct {
	BaseURL string
	Timeout time.Duration
	PerPage int
}

// SyllabusConfig configures the external document analysis service.
type SyllabusConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	CacheTTL       time.Duration
	MaxUploadBytes int64
}

// CalendarConfig configures the Google Calendar sync target.
type CalendarConfig struct {
	BaseURL    string
	CalendarID string
	Timeout    time.Duration
	FeedName   string
	FeedTTL    time.Duration
	FeedSecret string
}

// AggregationConfig tunes the merged calendar window.
type AggregationConfig struct {
	SourceTimeout  time.Duration
	UpcomingLimit  int
	UpcomingWindow time.Duration
	Timezone       string
	CacheTTL       time.Duration
	MaxOccurrences int
}

// SyncConfig controls the external calendar push.
type SyncConfig struct {
	Target                string
	Scope                 string
	WindowDays            int
	PushTimeout           time.Duration
	AutoSyncAfterAnalysis bool
}

// StorageConfig controls uploaded syllabus documents and published feeds.
type StorageConfig struct {
	BaseDir          string
	DocumentTTL      time.Duration
	CleanupSchedule  string
	AllowedMIMETypes []string
}

// VaultConfig holds the key material sealing provider credentials at rest.
type VaultConfig struct {
	Secret string
}

// SessionConfig bounds in-memory per-user sessions.
type SessionConfig struct {
	IdleTTL       time.Duration
	EvictSchedule string
}

// JobsConfig sizes the background sync queue.
type JobsConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:   v.GetBool("DB_AUTO_MIGRATE"),
		MigrationsDir: v.GetString("DB_MIGRATIONS_DIR"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.LMS = LMSConfig{
		BaseURL: v.GetString("LMS_BASE_URL"),
		Timeout: parseDuration(v.GetString("LMS_TIMEOUT"), 10*time.Second),
		PerPage: v.GetInt("LMS_PER_PAGE"),
	}

	maxUpload := v.GetInt64("SYLLABUS_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 15 * 1024 * 1024
	}
	cfg.Syllabus = SyllabusConfig{
		BaseURL:        v.GetString("SYLLABUS_SERVICE_URL"),
		APIKey:         v.GetString("SYLLABUS_SERVICE_API_KEY"),
		Timeout:        parseDuration(v.GetString("SYLLABUS_TIMEOUT"), 90*time.Second),
		CacheTTL:       parseDuration(v.GetString("SYLLABUS_CACHE_TTL"), 7*24*time.Hour),
		MaxUploadBytes: maxUpload,
	}

	cfg.Calendar = CalendarConfig{
		BaseURL:    v.GetString("GOOGLE_CALENDAR_BASE_URL"),
		CalendarID: v.GetString("GOOGLE_CALENDAR_ID"),
		Timeout:    parseDuration(v.GetString("GOOGLE_CALENDAR_TIMEOUT"), 10*time.Second),
		FeedName:   v.GetString("ICS_FEED_NAME"),
		FeedTTL:    parseDuration(v.GetString("ICS_FEED_URL_TTL"), 365*24*time.Hour),
		FeedSecret: v.GetString("ICS_FEED_SECRET"),
	}

	cfg.Aggregation = AggregationConfig{
		SourceTimeout:  parseDuration(v.GetString("AGGREGATION_SOURCE_TIMEOUT"), 8*time.Second),
		UpcomingLimit:  v.GetInt("AGGREGATION_UPCOMING_LIMIT"),
		UpcomingWindow: parseDuration(v.GetString("AGGREGATION_UPCOMING_WINDOW"), 14*24*time.Hour),
		Timezone:       v.GetString("AGGREGATION_TIMEZONE"),
		CacheTTL:       parseDuration(v.GetString("AGGREGATION_CACHE_TTL"), 2*time.Minute),
		MaxOccurrences: v.GetInt("AGGREGATION_MAX_OCCURRENCES"),
	}

	cfg.Sync = SyncConfig{
		Target:                strings.ToLower(v.GetString("SYNC_TARGET")),
		Scope:                 strings.ToLower(v.GetString("SYNC_SCOPE")),
		WindowDays:            v.GetInt("SYNC_WINDOW_DAYS"),
		PushTimeout:           parseDuration(v.GetString("SYNC_PUSH_TIMEOUT"), 30*time.Second),
		AutoSyncAfterAnalysis: v.GetBool("SYNC_AUTO_AFTER_ANALYSIS"),
	}

	cfg.Storage = StorageConfig{
		BaseDir:          v.GetString("STORAGE_DIR"),
		DocumentTTL:      parseDuration(v.GetString("STORAGE_DOCUMENT_TTL"), 180*24*time.Hour),
		CleanupSchedule:  v.GetString("STORAGE_CLEANUP_SCHEDULE"),
		AllowedMIMETypes: splitAndTrim(v.GetString("STORAGE_ALLOWED_MIME_TYPES")),
	}

	cfg.Vault = VaultConfig{Secret: v.GetString("VAULT_SECRET")}

	cfg.Sessions = SessionConfig{
		IdleTTL:       parseDuration(v.GetString("SESSION_IDLE_TTL"), 2*time.Hour),
		EvictSchedule: v.GetString("SESSION_EVICT_SCHEDULE"),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("SYNC_WORKERS"),
		MaxRetries: v.GetInt("SYNC_JOB_RETRIES"),
		RetryDelay: parseDuration(v.GetString("SYNC_JOB_RETRY_DELAY"), 5*time.Second),
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
	v.SetDefault("DB_NAME", "studycal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("DB_MIGRATIONS_DIR", "migrations")

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LMS_BASE_URL", "https://canvas.instructure.com")
	v.SetDefault("LMS_TIMEOUT", "10s")
	v.SetDefault("LMS_PER_PAGE", 50)

	v.SetDefault("SYLLABUS_SERVICE_URL", "http://localhost:8000")
	v.SetDefault("SYLLABUS_SERVICE_API_KEY", "")
	v.SetDefault("SYLLABUS_TIMEOUT", "90s")
	v.SetDefault("SYLLABUS_CACHE_TTL", "168h")
	v.SetDefault("SYLLABUS_MAX_UPLOAD_BYTES", 15*1024*1024)

	v.SetDefault("GOOGLE_CALENDAR_BASE_URL", "https://www.googleapis.com/calendar/v3")
	v.SetDefault("GOOGLE_CALENDAR_ID", "primary")
	v.SetDefault("GOOGLE_CALENDAR_TIMEOUT", "10s")
	v.SetDefault("ICS_FEED_NAME", "StudyCal")
	v.SetDefault("ICS_FEED_URL_TTL", "8760h")
	v.SetDefault("ICS_FEED_SECRET", "dev_feed_secret")

	v.SetDefault("AGGREGATION_SOURCE_TIMEOUT", "8s")
	v.SetDefault("AGGREGATION_UPCOMING_LIMIT", 10)
	v.SetDefault("AGGREGATION_UPCOMING_WINDOW", "336h")
	v.SetDefault("AGGREGATION_TIMEZONE", "UTC")
	v.SetDefault("AGGREGATION_CACHE_TTL", "2m")
	v.SetDefault("AGGREGATION_MAX_OCCURRENCES", 500)

	v.SetDefault("SYNC_TARGET", SyncTargetGoogle)
	v.SetDefault("SYNC_SCOPE", SyncScopeWindow)
	v.SetDefault("SYNC_WINDOW_DAYS", 120)
	v.SetDefault("SYNC_PUSH_TIMEOUT", "30s")
	v.SetDefault("SYNC_AUTO_AFTER_ANALYSIS", false)

	v.SetDefault("STORAGE_DIR", "./data")
	v.SetDefault("STORAGE_DOCUMENT_TTL", "4320h")
	v.SetDefault("STORAGE_CLEANUP_SCHEDULE", "@daily")
	v.SetDefault("STORAGE_ALLOWED_MIME_TYPES", "application/pdf,text/plain,application/vnd.openxmlformats-officedocument.wordprocessingml.document")

	v.SetDefault("VAULT_SECRET", "dev_vault_secret")

	v.SetDefault("SESSION_IDLE_TTL", "2h")
	v.SetDefault("SESSION_EVICT_SCHEDULE", "@every 10m")

	v.SetDefault("SYNC_WORKERS", 2)
	v.SetDefault("SYNC_JOB_RETRIES", 2)
	v.SetDefault("SYNC_JOB_RETRY_DELAY", "5s")
}

// Location resolves the aggregation time zone, falling back to UTC.
func (c AggregationConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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
