// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

// Package config loads AuthGate settings. Sources, lowest precedence
// first: flag defaults, a YAML file, .env files, AUTHGATE_* environment
// variables and explicitly set flags.
package config

import (
	"errors"
	"io/fs"
	"net/netip"
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

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/xdg"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "AUTHGATE_"

// Deployment environments.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Defaults.
const (
	DefaultListenAddr      = ":3000"
	DefaultMetricsAddr     = "127.0.0.1:9100"
	DefaultLogFormat       = "json"
	DefaultLogLevel        = "info"
	DefaultCORSOrigin      = "http://localhost:5173"
	DefaultGateTimeout     = 2 * time.Second
	DefaultRateLimitWindow = time.Minute
	DefaultRateLimitMax    = 10
	DefaultGateRemoteRPS   = 50.0
)

// Config is the resolved process configuration.
type Config struct {
	Env             string        `koanf:"env"`
	ListenAddr      string        `koanf:"listen-addr"`
	MetricsAddr     string        `koanf:"metrics-addr"`
	LogFormat       string        `koanf:"log-format"`
	LogLevel        string        `koanf:"log-level"`
	TLSCert         string        `koanf:"tls-cert"`
	TLSKey          string        `koanf:"tls-key"`
	DatabaseURL     string        `koanf:"database-url"`
	RedisURL        string        `koanf:"redis-url"`
	JWTSecret       string        `koanf:"jwt-secret"`
	TokenTTL        time.Duration `koanf:"token-ttl"`
	CookieDomain    string        `koanf:"cookie-domain"`
	CORSOrigins     []string      `koanf:"cors-origins"`
	TrustedProxies  []string      `koanf:"trusted-proxies"`
	GateKey         string        `koanf:"gate-key"`
	GateEndpoint    string        `koanf:"gate-endpoint"`
	GateTimeout     time.Duration `koanf:"gate-timeout"`
	GateRemoteRPS   float64       `koanf:"gate-remote-rps"`
	RateLimitWindow time.Duration `koanf:"rate-limit-window"`
	RateLimitMax    int           `koanf:"rate-limit-max"`
}

// RegisterFlags adds a flag for every key to fs. Flag defaults are the
// configuration defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("env", EnvDevelopment, "deployment environment (development, test or production)")
	fs.String("listen-addr", DefaultListenAddr, "API listen address")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
	fs.String("log-level", DefaultLogLevel, "minimum log level (debug, info, warn or error)")
	fs.String("tls-cert", "", "PEM certificate for HTTPS (requires tls-key)")
	fs.String("tls-key", "", "PEM private key for HTTPS (requires tls-cert)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("redis-url", "", "Redis URL for rate limiting (empty = in-process)")
	fs.String("jwt-secret", "", "session token signing secret")
	fs.Duration("token-ttl", auth.DefaultTokenTTL, "session token and cookie lifetime")
	fs.String("cookie-domain", "", "session cookie domain")
	fs.StringSlice("cors-origins", []string{DefaultCORSOrigin}, "allowed CORS origins")
	fs.StringSlice("trusted-proxies", nil, "proxy IPs or CIDRs whose X-Forwarded-For is honoured (empty = none)")
	fs.String("gate-key", "", "decision engine key")
	fs.String("gate-endpoint", "", "remote decision engine URL (empty = built-in rules)")
	fs.Duration("gate-timeout", DefaultGateTimeout, "security gate decision timeout")
	fs.Float64("gate-remote-rps", DefaultGateRemoteRPS, "max remote decision calls per second (0 = unlimited)")
	fs.Duration("rate-limit-window", DefaultRateLimitWindow, "sliding window size")
	fs.Int("rate-limit-max", DefaultRateLimitMax, "requests allowed per client per window")
}

// LoadOptions selects the sources for Load.
type LoadOptions struct {
	// ConfigFile is a YAML file. Empty selects the XDG default when it exists.
	ConfigFile string
	// EnvFiles are dotenv files merged into the process environment.
	// Missing files are skipped; variables already set win.
	EnvFiles []string
	// Flags must have been set up with RegisterFlags.
	Flags *pflag.FlagSet
}

// Load resolves the configuration. It does not validate it.
func Load(opts LoadOptions) (*Config, error) {
	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_ENV_FILE_INVALID").With("file", f).Wrap(err)
		}
	}

	k := koanf.New(".")

	path := opts.ConfigFile
	if path == "" {
		if p, ok := xdg.DefaultConfigFile(); ok {
			path = p
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("file", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.Provider(opts.Flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.TrustedProxies = splitList(cfg.TrustedProxies)
	return &cfg, nil
}

// envKey maps AUTHGATE_RATE_LIMIT_MAX to rate-limit-max.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
}

// splitList accepts both list values and a single comma-separated entry.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// IsDevelopment reports whether the process runs in local development.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// TLSEnabled reports whether the API serves HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is a
// single-host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, item := range c.TrustedProxies {
		p, err := parseProxy(item)
		if err != nil {
			return nil, invalid("trusted-proxies", "trusted-proxies entry %q is not an IP or CIDR", item)
		}
		out = append(out, p)
	}
	return out, nil
}

func parseProxy(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// SecureCookies reports whether session cookies carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return !c.IsDevelopment()
}

func invalid(key string, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// ValidateDatabase checks the settings needed to reach PostgreSQL.
func (c *Config) ValidateDatabase() error {
	if c.DatabaseURL == "" {
		return invalid("database-url", "database-url is required")
	}
	return nil
}

// Validate checks everything the server needs.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return invalid("env", "env must be development, test or production, got %q", c.Env)
	}
	if c.ListenAddr == "" {
		return invalid("listen-addr", "listen-addr is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log-format", "log-format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return invalid("tls-cert", "tls-cert and tls-key must be set together")
	}
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if len(c.JWTSecret) < auth.MinTokenSecretSize {
		return invalid("jwt-secret", "jwt-secret must be at least %d bytes", auth.MinTokenSecretSize)
	}
	if c.TokenTTL <= 0 {
		return invalid("token-ttl", "token-ttl must be positive, got %s", c.TokenTTL)
	}
	if c.GateTimeout <= 0 {
		return invalid("gate-timeout", "gate-timeout must be positive, got %s", c.GateTimeout)
	}
	if c.GateRemoteRPS < 0 {
		return invalid("gate-remote-rps", "gate-remote-rps cannot be negative")
	}
	if c.RateLimitWindow <= 0 {
		return invalid("rate-limit-window", "rate-limit-window must be positive, got %s", c.RateLimitWindow)
	}
	if c.RateLimitMax <= 0 {
		return invalid("rate-limit-max", "rate-limit-max must be positive, got %d", c.RateLimitMax)
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}
