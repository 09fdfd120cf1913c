// Package config loads and validates site configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Site      SiteConfig      `mapstructure:"site"`
	Auth      AuthConfig      `mapstructure:"auth"`
	DB        DBConfig        `mapstructure:"db"`
	Markets   MarketsConfig   `mapstructure:"markets"`
	Mail      MailConfig      `mapstructure:"mail"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Events    EventsConfig    `mapstructure:"events"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// BaseURL is the external origin used for absolute links in emails and sitemaps.
	BaseURL                  string `mapstructure:"base_url"`
	TrustProxy               bool   `mapstructure:"trust_proxy"`
	RequestTimeoutSeconds    int    `mapstructure:"request_timeout_seconds"`
	ReadHeaderTimeoutSeconds int    `mapstructure:"read_header_timeout_seconds"`
	Debug                    bool   `mapstructure:"debug"`
}

// SiteConfig holds editorial settings.
type SiteConfig struct {
	Name        string   `mapstructure:"name"`
	Language    string   `mapstructure:"language"`
	ContactTo   string   `mapstructure:"contact_to"`
	AdminEmails []string `mapstructure:"admin_emails"`
}

// AuthConfig defines session and token lifetimes.
type AuthConfig struct {
	SecretKey    string        `mapstructure:"secret_key"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	RememberTTL  time.Duration `mapstructure:"remember_ttl"`
	VerifyTTL    time.Duration `mapstructure:"verify_ttl"`
	ResetTTL     time.Duration `mapstructure:"reset_ttl"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
	BcryptCost   int           `mapstructure:"bcrypt_cost"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	// Driver is "postgres" or "memory". Empty picks postgres when a DSN is present.
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// MarketsConfig configures the EIA client and the price window.
type MarketsConfig struct {
	APIKey                string   `mapstructure:"api_key"`
	BaseURL               string   `mapstructure:"base_url"`
	Symbols               []string `mapstructure:"symbols"`
	Unit                  string   `mapstructure:"unit"`
	WindowSize            int      `mapstructure:"window_size"`
	ChunkSize             int      `mapstructure:"chunk_size"`
	ConnectTimeoutSeconds int      `mapstructure:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int      `mapstructure:"read_timeout_seconds"`
	MaxRetries            int      `mapstructure:"max_retries"`
	BackoffInitialMs      int      `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs          int      `mapstructure:"backoff_max_ms"`
	RequestsPerSecond     float64  `mapstructure:"requests_per_second"`
	RefreshIntervalMin    int      `mapstructure:"refresh_interval_minutes"`
	CacheTTLSeconds       int      `mapstructure:"cache_ttl_seconds"`
	// MaxAgeMinutes is how old a stored quote may get before the dashboard
	// fetches it again; 0 serves stored data until the refresher runs.
	MaxAgeMinutes int `mapstructure:"max_age_minutes"`
}

// MailConfig selects and configures the outgoing mail provider.
type MailConfig struct {
	Provider      string `mapstructure:"provider"`
	Sender        string `mapstructure:"sender"`
	SenderName    string `mapstructure:"sender_name"`
	SMTPHost      string `mapstructure:"smtp_host"`
	SMTPPort      int    `mapstructure:"smtp_port"`
	SMTPUser      string `mapstructure:"smtp_user"`
	SMTPPass      string `mapstructure:"smtp_pass"`
	MailgunDomain string `mapstructure:"mailgun_domain"`
	MailgunAPIKey string `mapstructure:"mailgun_api_key"`
}

// StorageConfig sets where uploaded article images are persisted.
type StorageConfig struct {
	Provider       string `mapstructure:"provider"`
	BaseDir        string `mapstructure:"base_dir"`
	GCSBucket      string `mapstructure:"gcs_bucket"`
	Prefix         string `mapstructure:"prefix"`
	PublicBaseURL  string `mapstructure:"public_base_url"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// EventsConfig holds metadata for publish-subscribe notifications.
type EventsConfig struct {
	Provider    string `mapstructure:"provider"`
	ProjectID   string `mapstructure:"project_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// RateLimitConfig throttles sensitive form posts per client address.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig toggles OpenTelemetry. Spans are exported to Cloud Trace
// only when ProjectID is set.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CANAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindLegacyEnv maps the environment variable names used by existing deployments.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"db.dsn":               {"CANAL_DB_DSN", "DB_CANAL_URI", "DATABASE_URL"},
		"auth.secret_key":      {"CANAL_AUTH_SECRET_KEY", "CANAL_KEY"},
		"markets.api_key":      {"CANAL_MARKETS_API_KEY", "EIA_API_KEY"},
		"server.port":          {"CANAL_SERVER_PORT", "PORT"},
		"site.contact_to":      {"CANAL_SITE_CONTACT_TO", "CONTACT_TO"},
		"mail.smtp_host":       {"CANAL_MAIL_SMTP_HOST", "SMTP_HOST"},
		"mail.smtp_port":       {"CANAL_MAIL_SMTP_PORT", "SMTP_PORT"},
		"mail.smtp_user":       {"CANAL_MAIL_SMTP_USER", "SMTP_USER"},
		"mail.smtp_pass":       {"CANAL_MAIL_SMTP_PASS", "SMTP_PASS"},
		"mail.sender":          {"CANAL_MAIL_SENDER", "MAIL_SENDER"},
		"telemetry.project_id": {"CANAL_TELEMETRY_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.trust_proxy", true)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.read_header_timeout_seconds", 5)
	v.SetDefault("server.debug", false)
	v.SetDefault("site.name", "Canal Energético")
	v.SetDefault("site.language", "es")
	v.SetDefault("site.contact_to", "")
	v.SetDefault("site.admin_emails", []string{})
	v.SetDefault("auth.secret_key", "")
	v.SetDefault("auth.session_ttl", 12*time.Hour)
	v.SetDefault("auth.remember_ttl", 30*24*time.Hour)
	v.SetDefault("auth.verify_ttl", 48*time.Hour)
	v.SetDefault("auth.reset_ttl", 2*time.Hour)
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("db.driver", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("markets.base_url", "https://api.eia.gov/v2/petroleum/pri/spt/data/")
	v.SetDefault("markets.symbols", []string{"RBRTE", "RWTC"})
	v.SetDefault("markets.unit", "USD/bbl")
	v.SetDefault("markets.window_size", 30)
	v.SetDefault("markets.chunk_size", 10)
	v.SetDefault("markets.connect_timeout_seconds", 5)
	v.SetDefault("markets.read_timeout_seconds", 60)
	v.SetDefault("markets.max_retries", 4)
	v.SetDefault("markets.backoff_initial_ms", 1000)
	v.SetDefault("markets.backoff_max_ms", 120000)
	v.SetDefault("markets.requests_per_second", 5)
	v.SetDefault("markets.refresh_interval_minutes", 0)
	v.SetDefault("markets.cache_ttl_seconds", 300)
	v.SetDefault("markets.max_age_minutes", 60)
	v.SetDefault("mail.provider", "log")
	v.SetDefault("mail.sender_name", "Canal Energético")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.base_dir", "uploads")
	v.SetDefault("storage.prefix", "images")
	v.SetDefault("storage.public_base_url", "/media")
	v.SetDefault("storage.max_upload_bytes", 5<<20)
	v.SetDefault("events.provider", "noop")
	v.SetDefault("events.topic_prefix", "canal-")
	v.SetDefault("ratelimit.rps", 0.5)
	v.SetDefault("ratelimit.burst", 5)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "canal-web")
}

// normalize resolves derived values after unmarshalling.
func (c *Config) normalize() {
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	if c.DB.Driver == "" {
		if c.DB.DSN != "" {
			c.DB.Driver = "postgres"
		} else {
			c.DB.Driver = "memory"
		}
	}
	c.Mail.Provider = strings.ToLower(strings.TrimSpace(c.Mail.Provider))
	c.Storage.Provider = strings.ToLower(strings.TrimSpace(c.Storage.Provider))
	c.Events.Provider = strings.ToLower(strings.TrimSpace(c.Events.Provider))
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	emails := make([]string, 0, len(c.Site.AdminEmails))
	for _, raw := range c.Site.AdminEmails {
		// Values from a single env var arrive as one comma separated entry.
		for _, part := range strings.Split(raw, ",") {
			if e := strings.ToLower(strings.TrimSpace(part)); e != "" {
				emails = append(emails, e)
			}
		}
	}
	c.Site.AdminEmails = emails
	if c.Auth.SecretKey == "" && c.Server.Debug {
		c.Auth.SecretKey = "dev-secret"
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("auth.secret_key must be set unless server.debug is enabled")
	}
	switch c.DB.Driver {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.driver is postgres")
		}
	default:
		return fmt.Errorf("unknown db.driver %q", c.DB.Driver)
	}
	if c.Markets.WindowSize <= 0 {
		return fmt.Errorf("markets.window_size must be > 0")
	}
	if c.Markets.ChunkSize <= 0 {
		return fmt.Errorf("markets.chunk_size must be > 0")
	}
	if c.Markets.MaxRetries < 0 {
		return fmt.Errorf("markets.max_retries must be >= 0")
	}
	if c.Markets.MaxAgeMinutes < 0 {
		return fmt.Errorf("markets.max_age_minutes must be >= 0")
	}
	switch c.Mail.Provider {
	case "log", "smtp", "mailgun":
	default:
		return fmt.Errorf("unknown mail.provider %q", c.Mail.Provider)
	}
	switch c.Storage.Provider {
	case "memory", "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	switch c.Events.Provider {
	case "noop", "memory":
	case "pubsub":
		if c.Events.ProjectID == "" {
			return fmt.Errorf("events.project_id must be set when events.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown events.provider %q", c.Events.Provider)
	}
	return nil
}

// RequestTimeout converts the configured request budget into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ReadHeaderTimeout bounds how long a client may take to send request headers.
func (c Config) ReadHeaderTimeout() time.Duration {
	if c.Server.ReadHeaderTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Server.ReadHeaderTimeoutSeconds) * time.Second
}

// IsAdminEmail reports whether email is on the admin whitelist.
func (c Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, e := range c.Site.AdminEmails {
		if e == email {
			return true
		}
	}
	return false
}

// ContactAddress resolves the recipient for site notifications.
func (c Config) ContactAddress() string {
	if to := strings.TrimSpace(c.Site.ContactTo); to != "" {
		return to
	}
	return "info.canalenergetico@gmail.com"
}
