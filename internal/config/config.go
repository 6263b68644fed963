// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings such as
// server timeouts, logging, storage drivers, reply and visitor policies,
// geolocation, rate limiting, and observability.
package config

import (
	"errors"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-chat-widget")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StoreConfig selects the durable key/value backend.
type StoreConfig struct {
	Driver     string // sqlite|pebble|memory
	DBPath     string // SQLite file
	PebblePath string // Pebble directory
}

// ReplyConfig drives the synthetic bot.
type ReplyConfig struct {
	Policy         string        // keyword|ack
	Delay          time.Duration // delay before each reply
	ResponsesPath  string        // optional markdown table; built-in table when empty
	FuzzyThreshold float64       // Jaccard threshold in [0,1]; 0 disables
	Greeting       string        // first message of a new log
	MaxTextRunes   int           // 0 disables the length check
}

// VisitorConfig drives page-visit tracking and host messages.
type VisitorConfig struct {
	DedupPolicy        string        // dwell|ever
	DwellWindow        time.Duration // dwell policy window
	HostOrigins        []string      // accepted cross-frame origins; empty accepts any
	Reactions          []string      // accepted reaction emoji
	MaxAttachmentBytes int64         // attachment cap
}

// GeoConfig configures country resolution.
type GeoConfig struct {
	Enabled    bool
	IPURL      string
	CountryURL string // fmt template receiving the IP
	Timeout    time.Duration
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
	TrustedProxies    []string      // proxy IPs/CIDRs whose X-Forwarded-For is honored; empty trusts none

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogRedact      bool   // redacting access log instead of the plain one
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	Store   StoreConfig
	Reply   ReplyConfig
	Visitor VisitorConfig
	Geo     GeoConfig

	// Sessions
	SessionIdleTTL time.Duration // evict sessions unused this long; 0 keeps them
	MaxSessions    int           // soft cap on sessions in memory; 0 is unbounded

	// Rate limiting
	RateRPS     float64 // per-profile tokens per second (>= 0)
	RateBurst   int     // per-profile bucket size (>= 1)
	RateIPRPS   float64 // per-client-IP tokens per second; 0 disables the IP limiter
	RateIPBurst int     // per-client-IP bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

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
		TrustedProxies:    splitCSV(getenv("TRUSTED_PROXIES", "")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogRedact:      getbool("LOG_REDACT", true),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		Store: StoreConfig{
			Driver:     strings.ToLower(strings.TrimSpace(getenv("STORE_DRIVER", "sqlite"))),
			DBPath:     getenv("DB_PATH", "widget.db"),
			PebblePath: getenv("PEBBLE_PATH", "data/pebble"),
		},
		Reply: ReplyConfig{
			Policy:         strings.ToLower(strings.TrimSpace(getenv("REPLY_POLICY", "keyword"))),
			Delay:          getdur("REPLY_DELAY", time.Second),
			ResponsesPath:  getenv("RESPONSES_PATH", ""),
			FuzzyThreshold: getfloat("REPLY_FUZZY_THRESHOLD", 0),
			Greeting:       getenv("GREETING", ""),
			MaxTextRunes:   getint("MAX_TEXT_RUNES", 4000),
		},
		Visitor: VisitorConfig{
			DedupPolicy:        strings.ToLower(strings.TrimSpace(getenv("DEDUP_POLICY", "dwell"))),
			DwellWindow:        getdur("DEDUP_WINDOW", 10*time.Second),
			HostOrigins:        splitCSV(getenv("HOST_ORIGINS", "")),
			Reactions:          splitCSV(getenv("REACTIONS", "😀,❤️,😂,😢,👍,👎")),
			MaxAttachmentBytes: getbytes("MAX_ATTACHMENT_BYTES", 5<<20),
		},
		Geo: GeoConfig{
			Enabled:    getbool("GEO_ENABLED", true),
			IPURL:      getenv("GEO_IP_URL", "https://api.ipify.org?format=json"),
			CountryURL: getenv("GEO_COUNTRY_URL", "https://ipinfo.io/%s/json"),
			Timeout:    getdur("GEO_TIMEOUT", 5*time.Second),
		},

		// Sessions
		SessionIdleTTL: getdur("SESSION_IDLE_TTL", 30*time.Minute),
		MaxSessions:    getint("MAX_SESSIONS", 10000),

		// Rate limiting
		RateRPS:     getfloat("RATE_RPS", 5.0),
		RateBurst:   getint("RATE_BURST", 10),
		RateIPRPS:   getfloat("RATE_IP_RPS", 20.0),
		RateIPBurst: getint("RATE_IP_BURST", 40),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-chat-widget"),
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
	switch cfg.Store.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Store.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "pebble":
		if strings.TrimSpace(cfg.Store.PebblePath) == "" {
			return cfg, errors.New("PEBBLE_PATH must not be empty")
		}
	case "memory":
	default:
		return cfg, errors.New("STORE_DRIVER must be one of: sqlite, pebble, memory")
	}
	switch cfg.Reply.Policy {
	case "keyword", "ack":
	default:
		return cfg, errors.New("REPLY_POLICY must be one of: keyword, ack")
	}
	if cfg.Reply.Delay < 0 {
		return cfg, errors.New("REPLY_DELAY must be >= 0")
	}
	if cfg.Reply.FuzzyThreshold < 0 || cfg.Reply.FuzzyThreshold > 1 {
		return cfg, errors.New("REPLY_FUZZY_THRESHOLD must be between 0 and 1")
	}
	if cfg.Reply.MaxTextRunes < 0 {
		return cfg, errors.New("MAX_TEXT_RUNES must be >= 0")
	}
	switch cfg.Visitor.DedupPolicy {
	case "dwell", "ever":
	default:
		return cfg, errors.New("DEDUP_POLICY must be one of: dwell, ever")
	}
	if cfg.Visitor.DwellWindow <= 0 {
		return cfg, errors.New("DEDUP_WINDOW must be > 0")
	}
	if len(cfg.Visitor.Reactions) == 0 {
		return cfg, errors.New("REACTIONS must list at least one emoji")
	}
	if cfg.Visitor.MaxAttachmentBytes <= 0 {
		return cfg, errors.New("MAX_ATTACHMENT_BYTES must be > 0")
	}
	if cfg.Geo.Enabled && (strings.TrimSpace(cfg.Geo.IPURL) == "" || strings.TrimSpace(cfg.Geo.CountryURL) == "") {
		return cfg, errors.New("GEO_IP_URL and GEO_COUNTRY_URL must not be empty when GEO_ENABLED")
	}
	if cfg.Geo.Timeout <= 0 {
		return cfg, errors.New("GEO_TIMEOUT must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.RateIPRPS < 0 {
		return cfg, errors.New("RATE_IP_RPS must be >= 0")
	}
	if cfg.RateIPBurst < 1 {
		return cfg, errors.New("RATE_IP_BURST must be >= 1")
	}
	if cfg.SessionIdleTTL < 0 {
		return cfg, errors.New("SESSION_IDLE_TTL must be >= 0")
	}
	if cfg.MaxSessions < 0 {
		return cfg, errors.New("MAX_SESSIONS must be >= 0")
	}
	for _, p := range cfg.TrustedProxies {
		if !validProxy(p) {
			return cfg, errors.New("TRUSTED_PROXIES must list IP addresses or CIDR ranges")
		}
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func validProxy(s string) bool {
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

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

// getbytes accepts plain byte counts or sizes such as "5MiB" and "512 kB".
func getbytes(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if n, err := humanize.ParseBytes(strings.TrimSpace(v)); err == nil && n <= 1<<62 {
			return int64(n)
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
