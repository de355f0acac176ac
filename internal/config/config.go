// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package config loads the proxy configuration.
//
// Values are layered: built-in defaults, then an optional YAML file
// (CONFIG_PATH or one of DefaultConfigPaths), then environment variables.
// See LoadWithKoanf for the exact order and envTransformFunc for the
// supported variable names.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Proxy        ProxyConfig        `koanf:"proxy"`
	Capabilities CapabilitiesConfig `koanf:"capabilities"`
	Security     SecurityConfig     `koanf:"security"`
	ProxyLog     ProxyLogConfig     `koanf:"proxy_log"`
	Jobs         JobsConfig         `koanf:"jobs"`
	Audit        AuditConfig        `koanf:"audit"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port    int           `koanf:"port"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`

	// ExternalURL is the public base URL of this proxy. Camouflaged
	// capabilities documents point at {ExternalURL}/ows/{id}.
	ExternalURL string `koanf:"external_url"`

	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// DatabaseConfig holds the DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// ProxyConfig controls how requests are forwarded to origin services.
type ProxyConfig struct {
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// HTTPProxy, HTTPSProxy and NoProxy configure an outbound forward proxy.
	HTTPProxy  string `koanf:"http_proxy"`
	HTTPSProxy string `koanf:"https_proxy"`
	NoProxy    string `koanf:"no_proxy"`

	UserAgent string `koanf:"user_agent"`

	// StreamThreshold is the body size in bytes above which responses are
	// streamed to the client instead of written in one piece.
	StreamThreshold int64 `koanf:"stream_threshold"`

	// MaskServerURL is a WMS endpoint that renders allowed areas as a
	// white-on-transparent mask. Empty selects the built-in rasterizer.
	MaskServerURL string `koanf:"mask_server_url"`
	MaskLayer     string `koanf:"mask_layer"`

	// ErrorMaskColor fills the map when the mask cannot be applied.
	ErrorMaskColor string `koanf:"error_mask_color"`

	// MaxInsertFeatureTypes rejects WFS-T inserts touching more feature types.
	MaxInsertFeatureTypes int `koanf:"max_insert_feature_types"`

	// Per origin host upstream rate limit, 0 disables.
	HostRateLimit float64 `koanf:"host_rate_limit"`
	HostRateBurst int     `koanf:"host_rate_burst"`

	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// CapabilitiesConfig controls the camouflaged capabilities cache.
type CapabilitiesConfig struct {
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// StorePath is the badger directory. Empty keeps documents in memory only.
	StorePath string `koanf:"store_path"`
}

// SecurityConfig holds authentication and authorization settings.
type SecurityConfig struct {
	// AuthMode is one of: none, basic, jwt, multi (basic or jwt).
	AuthMode       string        `koanf:"auth_mode"`
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`
	AdminUsername  string        `koanf:"admin_username"`
	AdminPassword  string        `koanf:"admin_password"`

	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`

	Casbin CasbinConfig `koanf:"casbin"`
}

// CasbinConfig configures the authorization enforcer.
type CasbinConfig struct {
	// ModelPath and PolicyPath override the embedded model and base policy.
	ModelPath    string        `koanf:"model_path"`
	PolicyPath   string        `koanf:"policy_path"`
	CacheEnabled bool          `koanf:"cache_enabled"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
}

// ProxyLogConfig controls persistence of proxied request/response pairs.
type ProxyLogConfig struct {
	// InlineLimit is the largest body stored in the database; larger bodies
	// are written to AttachmentsDir.
	InlineLimit     int64         `koanf:"inline_limit"`
	AttachmentsDir  string        `koanf:"attachments_dir"`
	BufferSize      int           `koanf:"buffer_size"`
	RetentionPeriod time.Duration `koanf:"retention_period"`

	// WAL keeps entries in the badger store until they are written, so a
	// full buffer or a failed insert does not lose them.
	WALEnabled       bool          `koanf:"wal_enabled"`
	WALRetryInterval time.Duration `koanf:"wal_retry_interval"`
	WALMaxAttempts   int           `koanf:"wal_max_attempts"`
	WALEntryTTL      time.Duration `koanf:"wal_entry_ttl"`
}

// JobsConfig controls the background job runner.
type JobsConfig struct {
	Workers   int `koanf:"workers"`
	QueueSize int `koanf:"queue_size"`

	// Retention is how long finished jobs stay queryable.
	Retention time.Duration `koanf:"retention"`
}

// AuditConfig controls the admin audit trail.
type AuditConfig struct {
	Enabled    bool          `koanf:"enabled"`
	BufferSize int           `koanf:"buffer_size"`
	Retention  time.Duration `koanf:"retention"`
}

// LoggingConfig is passed to logging.Init.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load is the entry point used by main.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
