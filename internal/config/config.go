// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, rate limiting, the
// collaborator endpoints (Graph API, AI service, object storage), and the
// background scheduler knobs.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "selfstar-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// GraphConfig defines the social graph API endpoint used for comments,
// replies, and media publishing.
type GraphConfig struct {
	BaseURL string        // GRAPH_API_URL
	Timeout time.Duration // GRAPH_TIMEOUT (per call)
}

// AIConfig defines the AI generation service endpoint.
type AIConfig struct {
	BaseURL      string        // AI_SERVICE_URL
	Timeout      time.Duration // AI_TIMEOUT (reply/caption calls)
	ImageTimeout time.Duration // AI_IMAGE_TIMEOUT (image generation is slower)
}

// S3Config defines object storage for generated images (MinIO / S3 compatible).
// An empty Endpoint disables blob storage and the features that need it.
type S3Config struct {
	Endpoint   string        // S3_ENDPOINT (host:port)
	AccessKey  string        // S3_ACCESS_KEY
	SecretKey  string        // S3_SECRET_KEY
	Bucket     string        // S3_BUCKET
	Secure     bool          // S3_SECURE
	PresignTTL time.Duration // S3_PRESIGN_TTL for GET URLs
}

// SchedulerConfig defines the background engagement loops.
type SchedulerConfig struct {
	AutoReplyEnabled bool          // AUTO_REPLY_SCHEDULER_ENABLED
	Interval         time.Duration // AUTO_REPLY_INTERVAL_SECONDS
	MediaLimit       int           // AUTO_REPLY_MEDIA_LIMIT recent posts per persona
	CommentsLimit    int           // AUTO_REPLY_COMMENTS_LIMIT comments per post
	MaxPerPersona    int           // AUTO_REPLY_MAX_PER_PERSONA replies per tick
	PersonaLimit     int           // AUTO_REPLY_PERSONA_LIMIT personas per tick

	SnapshotInterval     time.Duration // SNAPSHOT_INTERVAL
	SnapshotPersonaLimit int           // SNAPSHOT_PERSONA_LIMIT
}

// EngageConfig defines the auto-image and auto-publish behavior flags.
type EngageConfig struct {
	AutoImageEnabled bool // AUTO_IMAGE_COMMENTS
	// AutoImageAckSeen controls whether a successful auto-image marks the
	// source comment as seen. A generated-and-stored image is a completed
	// response to the comment, so the reply scheduler must not also answer it.
	AutoImageAckSeen   bool          // AUTO_IMAGE_ACK_SEEN
	AutoPublishEnabled bool          // AUTO_PUBLISH_ENABLED
	PublishPollInt     time.Duration // PUBLISH_POLL_INTERVAL container status poll
	PublishPollMax     int           // PUBLISH_POLL_ATTEMPTS
	PublishRetrySleep  time.Duration // PUBLISH_RETRY_SLEEP before the single retry
}

// CreditsConfig defines the prepaid credit policy knobs.
type CreditsConfig struct {
	AllowSelfGrant  bool // CREDITS_ALLOW_SELF_GRANT (dev convenience)
	UpgradeGrantPro int  // CREDITS_UPGRADE_GRANT_PRO bonus credits on pro upgrade
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath string // SQLite path

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Collaborators
	Graph GraphConfig
	AI    AIConfig
	S3    S3Config

	// Domain behavior
	Scheduler SchedulerConfig
	Engage    EngageConfig
	Credits   CreditsConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// App
		DBPath: getenv("DB_PATH", "selfstar.db"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Collaborators
		Graph: GraphConfig{
			BaseURL: strings.TrimRight(getenv("GRAPH_API_URL", "https://graph.instagram.com"), "/"),
			Timeout: getdur("GRAPH_TIMEOUT", 20*time.Second),
		},
		AI: AIConfig{
			BaseURL:      strings.TrimRight(getenv("AI_SERVICE_URL", "http://ai:8600"), "/"),
			Timeout:      getdur("AI_TIMEOUT", 20*time.Second),
			ImageTimeout: getdur("AI_IMAGE_TIMEOUT", 60*time.Second),
		},
		S3: S3Config{
			Endpoint:   getenv("S3_ENDPOINT", ""),
			AccessKey:  getenv("S3_ACCESS_KEY", ""),
			SecretKey:  getenv("S3_SECRET_KEY", ""),
			Bucket:     getenv("S3_BUCKET", "selfstar"),
			Secure:     getbool("S3_SECURE", false),
			PresignTTL: getdur("S3_PRESIGN_TTL", time.Hour),
		},

		// Domain behavior
		Scheduler: SchedulerConfig{
			AutoReplyEnabled:     getbool("AUTO_REPLY_SCHEDULER_ENABLED", true),
			Interval:             time.Duration(getint("AUTO_REPLY_INTERVAL_SECONDS", 300)) * time.Second,
			MediaLimit:           getint("AUTO_REPLY_MEDIA_LIMIT", 3),
			CommentsLimit:        getint("AUTO_REPLY_COMMENTS_LIMIT", 5),
			MaxPerPersona:        getint("AUTO_REPLY_MAX_PER_PERSONA", 5),
			PersonaLimit:         getint("AUTO_REPLY_PERSONA_LIMIT", 200),
			SnapshotInterval:     getdur("SNAPSHOT_INTERVAL", 24*time.Hour),
			SnapshotPersonaLimit: getint("SNAPSHOT_PERSONA_LIMIT", 500),
		},
		Engage: EngageConfig{
			AutoImageEnabled:   getbool("AUTO_IMAGE_COMMENTS", true),
			AutoImageAckSeen:   getbool("AUTO_IMAGE_ACK_SEEN", true),
			AutoPublishEnabled: getbool("AUTO_PUBLISH_ENABLED", true),
			PublishPollInt:     getdur("PUBLISH_POLL_INTERVAL", time.Second),
			PublishPollMax:     getint("PUBLISH_POLL_ATTEMPTS", 20),
			PublishRetrySleep:  getdur("PUBLISH_RETRY_SLEEP", 3*time.Second),
		},
		Credits: CreditsConfig{
			AllowSelfGrant:  getbool("CREDITS_ALLOW_SELF_GRANT", true),
			UpgradeGrantPro: getint("CREDITS_UPGRADE_GRANT_PRO", 0),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "selfstar-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.Graph.BaseURL == "" || cfg.AI.BaseURL == "" {
		return cfg, errors.New("GRAPH_API_URL and AI_SERVICE_URL must not be empty")
	}
	if cfg.Graph.Timeout <= 0 || cfg.AI.Timeout <= 0 || cfg.AI.ImageTimeout <= 0 {
		return cfg, errors.New("collaborator timeouts must be positive durations")
	}
	if cfg.Scheduler.Interval <= 0 {
		return cfg, errors.New("AUTO_REPLY_INTERVAL_SECONDS must be > 0")
	}
	if cfg.Scheduler.MediaLimit < 1 || cfg.Scheduler.CommentsLimit < 1 {
		return cfg, errors.New("AUTO_REPLY_MEDIA_LIMIT and AUTO_REPLY_COMMENTS_LIMIT must be >= 1")
	}
	if cfg.Scheduler.MaxPerPersona < 1 || cfg.Scheduler.PersonaLimit < 1 {
		return cfg, errors.New("AUTO_REPLY_MAX_PER_PERSONA and AUTO_REPLY_PERSONA_LIMIT must be >= 1")
	}
	if cfg.Scheduler.SnapshotInterval <= 0 || cfg.Scheduler.SnapshotPersonaLimit < 1 {
		return cfg, errors.New("snapshot interval and persona limit must be positive")
	}
	if cfg.Engage.PublishPollInt <= 0 || cfg.Engage.PublishPollMax < 1 {
		return cfg, errors.New("PUBLISH_POLL_INTERVAL and PUBLISH_POLL_ATTEMPTS must be positive")
	}
	if cfg.Credits.UpgradeGrantPro < 0 {
		return cfg, errors.New("CREDITS_UPGRADE_GRANT_PRO must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
