package config

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080" path:"listen_addr"`
	SiteName   string `env:"SITE_NAME" envDefault:"School Lost & Found" path:"site_name"`
	BaseURL    string `env:"BASE_URL" envDefault:"" path:"base_url"`

	HTTP     HTTPConfig     `path:"http"`
	DB       DBConfig       `path:"db"`
	Session  SessionConfig  `path:"session"`
	Security SecurityConfig `path:"security"`
	Upload   UploadConfig   `path:"upload"`
	Captcha  CaptchaConfig  `path:"captcha"`
	Notify   NotifyConfig   `path:"notify"`
	Log      LogConfig      `path:"log"`
	Janitor  JanitorConfig  `path:"janitor"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," path:"cors_allowed_origins"`
	AutoApproveUsers   bool     `env:"AUTO_APPROVE_USERS" envDefault:"false" path:"auto_approve_users"`

	BootstrapAdminEmail    string `env:"BOOTSTRAP_ADMIN_EMAIL" path:"bootstrap.admin_email"`
	BootstrapAdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD" path:"-"`
	BootstrapAdminName     string `env:"BOOTSTRAP_ADMIN_NAME" envDefault:"Administrator" path:"bootstrap.admin_name"`
}

type HTTPConfig struct {
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s" path:"read_timeout"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s" path:"read_header_timeout"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s" path:"write_timeout"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s" path:"idle_timeout"`
	ThrottleRPS       float64       `env:"HTTP_THROTTLE_RPS" envDefault:"50" path:"throttle_rps"`
	ThrottleBurst     int           `env:"HTTP_THROTTLE_BURST" envDefault:"100" path:"throttle_burst"`
}

type DBConfig struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"sqlite" path:"driver"`
	Path            string        `env:"DB_PATH" envDefault:"./data/lostfound.db" path:"path"`
	DSN             string        `env:"DB_DSN" path:"-"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"4" path:"max_open_conns"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"2" path:"max_idle_conns"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m" path:"conn_max_lifetime"`
}

type SessionConfig struct {
	CookieName       string        `env:"SESSION_COOKIE_NAME" envDefault:"lostfound_session" path:"cookie_name"`
	IdleTimeout      time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"2h" path:"idle_timeout"`
	RegenerateEvery  time.Duration `env:"SESSION_REGENERATE_EVERY" envDefault:"5m" path:"regenerate_every"`
	CookieSecureMode string        `env:"COOKIE_SECURE_MODE" envDefault:"auto" path:"cookie_secure_mode"`
	TrustProxy       bool          `env:"TRUST_PROXY" envDefault:"false" path:"trust_proxy"`
	LoginPath        string        `env:"LOGIN_PATH" envDefault:"/login" path:"login_path"`
}

type RateRule struct {
	MaxAttempts int
	Window      time.Duration
}

type SecurityConfig struct {
	AllowedEmailDomains []string `env:"ALLOWED_EMAIL_DOMAINS" envSeparator:"," envDefault:"@school.edu" path:"allowed_email_domains"`
	PasswordMinLength   int      `env:"PASSWORD_MIN_LENGTH" envDefault:"8" path:"password_min_length"`
	PasswordMaxLength   int      `env:"PASSWORD_MAX_LENGTH" envDefault:"128" path:"password_max_length"`

	// RateLimitBackend is "db" (shared across instances) or "memory".
	RateLimitBackend string `env:"RATE_LIMIT_BACKEND" envDefault:"db" path:"rate_limit.backend"`

	LoginMaxAttempts    int           `env:"RATE_LOGIN_MAX" envDefault:"5" path:"rate_limit.login.max_attempts"`
	LoginWindow         time.Duration `env:"RATE_LOGIN_WINDOW" envDefault:"15m" path:"rate_limit.login.window"`
	RegisterMaxAttempts int           `env:"RATE_REGISTER_MAX" envDefault:"3" path:"rate_limit.register.max_attempts"`
	RegisterWindow      time.Duration `env:"RATE_REGISTER_WINDOW" envDefault:"1h" path:"rate_limit.register.window"`
	PostMaxAttempts     int           `env:"RATE_POST_MAX" envDefault:"10" path:"rate_limit.post.max_attempts"`
	PostWindow          time.Duration `env:"RATE_POST_WINDOW" envDefault:"1h" path:"rate_limit.post.window"`
	ContactMaxAttempts  int           `env:"RATE_CONTACT_MAX" envDefault:"5" path:"rate_limit.contact.max_attempts"`
	ContactWindow       time.Duration `env:"RATE_CONTACT_WINDOW" envDefault:"1h" path:"rate_limit.contact.window"`
}

type UploadConfig struct {
	Dir               string   `env:"UPLOAD_DIR" envDefault:"./data/uploads" path:"dir"`
	MaxBytes          int64    `env:"UPLOAD_MAX_BYTES" envDefault:"5242880" path:"max_bytes"`
	AllowedExtensions []string `env:"UPLOAD_ALLOWED_EXTENSIONS" envSeparator:"," envDefault:"jpg,jpeg,png,gif,webp" path:"allowed_extensions"`
	AllowedMIMETypes  []string `env:"UPLOAD_ALLOWED_MIME_TYPES" envSeparator:"," envDefault:"image/jpeg,image/png,image/gif,image/webp" path:"allowed_mime_types"`
}

type CaptchaConfig struct {
	Enabled   bool   `env:"CAPTCHA_ENABLED" envDefault:"false" path:"enabled"`
	Provider  string `env:"CAPTCHA_PROVIDER" envDefault:"turnstile" path:"provider"`
	VerifyURL string `env:"CAPTCHA_VERIFY_URL" path:"verify_url"`
	Secret    string `env:"CAPTCHA_SECRET" path:"-"`
}

type NotifyConfig struct {
	Sender       string `env:"NOTIFY_SENDER" envDefault:"log" path:"sender"`
	From         string `env:"NOTIFY_FROM" envDefault:"lostfound@school.edu" path:"from"`
	SMTPHost     string `env:"SMTP_HOST" envDefault:"127.0.0.1" path:"smtp.host"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587" path:"smtp.port"`
	SMTPUsername string `env:"SMTP_USERNAME" path:"smtp.username"`
	SMTPPassword string `env:"SMTP_PASSWORD" path:"-"`
	SMTPTLS      string `env:"SMTP_TLS" envDefault:"opportunistic" path:"smtp.tls"`
}

type JanitorConfig struct {
	Interval    time.Duration `env:"JANITOR_INTERVAL" envDefault:"15m" path:"interval"`
	OrphanGrace time.Duration `env:"JANITOR_ORPHAN_GRACE" envDefault:"1h" path:"orphan_grace"`
}

type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info" path:"level"`
	File       string `env:"LOG_FILE" path:"file"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100" path:"max_size_mb"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"7" path:"max_backups"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"30" path:"max_age_days"`
	Console    bool   `env:"LOG_CONSOLE" envDefault:"true" path:"console"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the configuration produced by an empty environment.
func Defaults() Config {
	var cfg Config
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	c.Session.CookieSecureMode = strings.ToLower(strings.TrimSpace(c.Session.CookieSecureMode))
	c.Captcha.Provider = strings.ToLower(strings.TrimSpace(c.Captcha.Provider))
	c.Notify.Sender = strings.ToLower(strings.TrimSpace(c.Notify.Sender))
	domains := make([]string, 0, len(c.Security.AllowedEmailDomains))
	for _, d := range c.Security.AllowedEmailDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if !strings.HasPrefix(d, "@") {
			d = "@" + d
		}
		domains = append(domains, d)
	}
	c.Security.AllowedEmailDomains = domains
	exts := make([]string, 0, len(c.Upload.AllowedExtensions))
	for _, e := range c.Upload.AllowedExtensions {
		e = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
		if e != "" {
			exts = append(exts, e)
		}
	}
	c.Upload.AllowedExtensions = exts
}

func (c Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(c.DB.Path) == "" {
			return fmt.Errorf("DB_PATH is required for sqlite")
		}
	case "mysql", "postgres":
		if strings.TrimSpace(c.DB.DSN) == "" {
			return fmt.Errorf("DB_DSN is required for %s", c.DB.Driver)
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of: sqlite, mysql, postgres")
	}
	if c.DB.MaxOpenConns <= 0 || c.DB.MaxIdleConns < 0 {
		return fmt.Errorf("invalid DB pool config")
	}
	if c.Session.IdleTimeout <= 0 || c.Session.RegenerateEvery <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}
	switch c.Session.CookieSecureMode {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("COOKIE_SECURE_MODE must be one of: auto, always, never")
	}
	if len(c.Security.AllowedEmailDomains) == 0 {
		return fmt.Errorf("ALLOWED_EMAIL_DOMAINS must list at least one domain")
	}
	if c.Security.PasswordMinLength < 8 {
		return fmt.Errorf("password min length must be >= 8")
	}
	if c.Security.PasswordMaxLength < c.Security.PasswordMinLength {
		return fmt.Errorf("password max length must be >= min length")
	}
	switch c.Security.RateLimitBackend {
	case "db", "memory":
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be one of: db, memory")
	}
	for _, rule := range c.RateRules() {
		if rule.MaxAttempts <= 0 || rule.Window <= 0 {
			return fmt.Errorf("rate limit thresholds and windows must be positive")
		}
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	if len(c.Upload.AllowedExtensions) == 0 || len(c.Upload.AllowedMIMETypes) == 0 {
		return fmt.Errorf("upload allow-lists must not be empty")
	}
	if c.Janitor.Interval < 0 || c.Janitor.OrphanGrace < 0 {
		return fmt.Errorf("janitor durations must not be negative")
	}
	switch c.Notify.Sender {
	case "log", "smtp":
	default:
		return fmt.Errorf("NOTIFY_SENDER must be one of: log, smtp")
	}
	if c.Captcha.Enabled {
		if strings.TrimSpace(c.Captcha.Secret) == "" {
			return fmt.Errorf("CAPTCHA_SECRET is required when CAPTCHA_ENABLED=true")
		}
		if strings.TrimSpace(c.Captcha.VerifyURL) == "" {
			switch c.Captcha.Provider {
			case "turnstile", "hcaptcha", "":
			default:
				return fmt.Errorf("unsupported CAPTCHA_PROVIDER: %s", c.Captcha.Provider)
			}
		}
	}
	return nil
}

// RateRules returns the configured fixed-window limits keyed by action name.
func (c Config) RateRules() map[string]RateRule {
	s := c.Security
	return map[string]RateRule{
		"login":    {MaxAttempts: s.LoginMaxAttempts, Window: s.LoginWindow},
		"register": {MaxAttempts: s.RegisterMaxAttempts, Window: s.RegisterWindow},
		"post":     {MaxAttempts: s.PostMaxAttempts, Window: s.PostWindow},
		"contact":  {MaxAttempts: s.ContactMaxAttempts, Window: s.ContactWindow},
	}
}

func (c Config) RateRule(action string) RateRule {
	return c.RateRules()[action]
}

func (c Config) CaptchaVerifyURL() string {
	if v := strings.TrimSpace(c.Captcha.VerifyURL); v != "" {
		return v
	}
	if c.Captcha.Provider == "hcaptcha" {
		return "https://hcaptcha.com/siteverify"
	}
	return "https://challenges.cloudflare.com/turnstile/v0/siteverify"
}

// ResolveCookieSecure reports whether cookies set on this response should carry
// the Secure attribute.
func (c Config) ResolveCookieSecure(r *http.Request) bool {
	switch c.Session.CookieSecureMode {
	case "always":
		return true
	case "never":
		return false
	}
	if r.TLS != nil {
		return true
	}
	if c.Session.TrustProxy {
		return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
	}
	return false
}

// Lookup resolves a dotted path such as "security.rate_limit.login.max_attempts"
// against the path tags of Config. Secrets are tagged "-" and never resolve.
func (c Config) Lookup(path string) (string, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", false
	}
	v, ok := lookup(reflect.ValueOf(c), path)
	if !ok {
		return "", false
	}
	switch x := v.Interface().(type) {
	case []string:
		return strings.Join(x, ","), true
	case time.Duration:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

func lookup(v reflect.Value, path string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("path")
		if tag == "" || tag == "-" {
			continue
		}
		fv := v.Field(i)
		if tag == path {
			if fv.Kind() == reflect.Struct {
				return reflect.Value{}, false
			}
			return fv, true
		}
		if fv.Kind() == reflect.Struct && strings.HasPrefix(path, tag+".") {
			if out, ok := lookup(fv, strings.TrimPrefix(path, tag+".")); ok {
				return out, true
			}
		}
	}
	return reflect.Value{}, false
}
