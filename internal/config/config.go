// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

// Package config loads CodeVault configuration. Sources are layered, later
// ones winning: built-in defaults, an optional YAML file, a .env file and the
// CODEVAULT_* environment, then explicitly set command-line flags.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/codevault/codevault/internal/auth"
	"github.com/codevault/codevault/internal/logging"
	"github.com/codevault/codevault/internal/mail"
)

// EnvPrefix prefixes every environment variable read by Load. A double
// underscore separates sections: CODEVAULT_AUTH__FRONTEND_URL sets
// auth.frontend_url.
const EnvPrefix = "CODEVAULT_"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config is the complete service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Mail     MailConfig     `koanf:"mail"`
	Log      LogConfig      `koanf:"log"`
}

// HTTPConfig configures the API and observability listeners.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	MetricsAddr     string        `koanf:"metrics_addr"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	CookieSecure    bool          `koanf:"cookie_secure"`
	BodyLimit       int64         `koanf:"body_limit"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig selects and locates the account store.
type DatabaseConfig struct {
	Driver         string        `koanf:"driver"`
	URL            string        `koanf:"url"`
	MongoDatabase  string        `koanf:"mongo_database"`
	ConnectRetries uint64        `koanf:"connect_retries"`
	RetryInterval  time.Duration `koanf:"retry_interval"`
	AutoMigrate    bool          `koanf:"auto_migrate"`
}

// AuthConfig configures tokens, password hashing and reset links.
type AuthConfig struct {
	AccessTokenSecret  string        `koanf:"access_token_secret"`
	RefreshTokenSecret string        `koanf:"refresh_token_secret"`
	AccessTokenTTL     time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `koanf:"refresh_token_ttl"`
	ResetTokenTTL      time.Duration `koanf:"reset_token_ttl"`
	Issuer             string        `koanf:"issuer"`
	FrontendURL        string        `koanf:"frontend_url"`
	NotifyTimeout      time.Duration `koanf:"notify_timeout"`
	Argon2             Argon2Config  `koanf:"argon2"`
}

// Argon2Config holds argon2id cost parameters.
type Argon2Config struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

// MailConfig selects the mailer.
type MailConfig struct {
	Driver   string `koanf:"driver"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// LogConfig configures the slog output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Argon2Params converts the configured cost to hasher parameters.
func (c AuthConfig) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{Time: c.Argon2.Time, MemoryKiB: c.Argon2.MemoryKiB, Threads: c.Argon2.Threads}
}

// SMTP returns the SMTP settings.
func (c MailConfig) SMTP() mail.SMTPConfig {
	return mail.SMTPConfig{Host: c.Host, Port: c.Port, Username: c.Username, Password: c.Password, From: c.From}
}

func defaults() map[string]any {
	return map[string]any{
		"http.addr":             ":8080",
		"http.metrics_addr":     "127.0.0.1:9100",
		"http.allowed_origins":  []string{"http://localhost:3000"},
		"http.cookie_secure":    true,
		"http.body_limit":       int64(16 << 10),
		"http.shutdown_timeout": 10 * time.Second,

		"database.driver":          DriverPostgres,
		"database.url":             "",
		"database.mongo_database":  "codevault",
		"database.connect_retries": uint64(5),
		"database.retry_interval":  5 * time.Second,
		"database.auto_migrate":    false,

		"auth.access_token_secret":  "",
		"auth.refresh_token_secret": "",
		"auth.access_token_ttl":     auth.DefaultAccessTokenTTL,
		"auth.refresh_token_ttl":    auth.DefaultRefreshTokenTTL,
		"auth.reset_token_ttl":      auth.DefaultResetTokenTTL,
		"auth.issuer":               "codevault",
		"auth.frontend_url":         "http://localhost:3000",
		"auth.notify_timeout":       auth.DefaultNotifyTimeout,
		"auth.argon2.time":          auth.DefaultArgon2Params.Time,
		"auth.argon2.memory_kib":    auth.DefaultArgon2Params.MemoryKiB,
		"auth.argon2.threads":       auth.DefaultArgon2Params.Threads,

		"mail.driver":   mail.DriverLog,
		"mail.host":     "",
		"mail.port":     587,
		"mail.username": "",
		"mail.password": "",
		"mail.from":     `"CodeVault" <no-reply@codevault.com>`,

		"log.format": logging.FormatJSON,
		"log.level":  "info",
	}
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"addr":         "http.addr",
	"metrics-addr": "http.metrics_addr",
	"database-url": "database.url",
	"db-driver":    "database.driver",
	"auto-migrate": "database.auto_migrate",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// LoadOptions names the sources Load reads. Empty fields are skipped.
type LoadOptions struct {
	File   string
	DotEnv string
	Flags  *pflag.FlagSet
}

// Load builds and validates a Config.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS").With("key", key).Wrap(err)
		}
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE").With("path", opts.File).Wrap(err)
		}
	}

	if opts.DotEnv != "" {
		if err := godotenv.Load(opts.DotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_DOTENV").With("path", opts.DotEnv).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE").Wrap(err)
	}
	cfg.Mail.From = strings.TrimSpace(cfg.Mail.From)
	cfg.Auth.FrontendURL = strings.TrimRight(cfg.Auth.FrontendURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns CODEVAULT_AUTH__ARGON2__MEMORY_KIB into auth.argon2.memory_kib.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverMongo:
	default:
		return invalid("database.driver", "database driver must be %q or %q", DriverPostgres, DriverMongo)
	}
	if c.Database.URL == "" {
		return invalid("database.url", "database url is required")
	}
	if c.Database.Driver == DriverMongo && c.Database.MongoDatabase == "" {
		return invalid("database.mongo_database", "mongo database name is required")
	}

	for key, secret := range map[string]string{
		"auth.access_token_secret":  c.Auth.AccessTokenSecret,
		"auth.refresh_token_secret": c.Auth.RefreshTokenSecret,
	} {
		if len(secret) < auth.MinTokenSecretLength {
			return invalid(key, "secret must be at least %d bytes", auth.MinTokenSecretLength)
		}
	}
	if c.Auth.AccessTokenSecret == c.Auth.RefreshTokenSecret {
		return invalid("auth.refresh_token_secret", "access and refresh secrets must differ")
	}

	for key, ttl := range map[string]time.Duration{
		"auth.access_token_ttl":  c.Auth.AccessTokenTTL,
		"auth.refresh_token_ttl": c.Auth.RefreshTokenTTL,
		"auth.reset_token_ttl":   c.Auth.ResetTokenTTL,
	} {
		if ttl <= 0 {
			return invalid(key, "ttl must be positive")
		}
	}
	if c.Auth.NotifyTimeout < 0 {
		return invalid("auth.notify_timeout", "notify timeout cannot be negative")
	}

	u, err := url.Parse(c.Auth.FrontendURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return invalid("auth.frontend_url", "frontend url must be an absolute URL")
	}

	a := c.Auth.Argon2
	if a.Time == 0 || a.MemoryKiB == 0 || a.Threads == 0 {
		return invalid("auth.argon2", "argon2 parameters must all be positive")
	}

	switch c.Mail.Driver {
	case mail.DriverLog:
	case mail.DriverSMTP:
		if c.Mail.Host == "" {
			return invalid("mail.host", "smtp host is required")
		}
	default:
		return invalid("mail.driver", "mail driver must be %q or %q", mail.DriverSMTP, mail.DriverLog)
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", "listen address is required")
	}
	if c.HTTP.BodyLimit <= 0 {
		return invalid("http.body_limit", "body limit must be positive")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatText:
	default:
		return invalid("log.format", "log format must be %q or %q", logging.FormatJSON, logging.FormatText)
	}
	return nil
}
