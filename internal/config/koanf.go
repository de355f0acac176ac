// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are tried in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mrmap-proxy/config.yaml",
	"/etc/mrmap-proxy/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			Timeout:         2 * time.Minute,
			ExternalURL:     "http://localhost:8080",
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		Database: DatabaseConfig{
			Path:      "/data/mrmap-proxy.duckdb",
			MaxMemory: "1GB",
		},
		Proxy: ProxyConfig{
			ConnectTimeout:        10 * time.Second,
			RequestTimeout:        60 * time.Second,
			UserAgent:             "mrmap-proxy",
			StreamThreshold:       5 * 1024 * 1024,
			MaskLayer:             "mask",
			ErrorMaskColor:        "#FF000080",
			MaxInsertFeatureTypes: 1,
			HostRateBurst:         20,
			BreakerEnabled:        true,
		},
		Capabilities: CapabilitiesConfig{
			CacheTTL:  time.Hour,
			StorePath: "/data/capabilities",
		},
		Security: SecurityConfig{
			AuthMode:        "multi",
			SessionTimeout:  24 * time.Hour,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
			Casbin: CasbinConfig{
				CacheEnabled: true,
				CacheTTL:     time.Minute,
			},
		},
		ProxyLog: ProxyLogConfig{
			InlineLimit:     64 * 1024,
			AttachmentsDir:  "/data/proxy-logs",
			BufferSize:      1000,
			RetentionPeriod: 90 * 24 * time.Hour,

			WALEnabled:       true,
			WALRetryInterval: time.Minute,
			WALMaxAttempts:   10,
			WALEntryTTL:      7 * 24 * time.Hour,
		},
		Jobs: JobsConfig{
			Workers:   2,
			QueueSize: 64,
			Retention: 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1000,
			Retention:  365 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf layers defaults, the config file and the environment, then
// validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma separated env values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := make([]string, 0)
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			continue
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"http_port":             "server.port",
	"http_host":             "server.host",
	"http_timeout":          "server.timeout",
	"external_url":          "server.external_url",
	"api_default_page_size": "server.default_page_size",
	"api_max_page_size":     "server.max_page_size",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"proxy_connect_timeout":    "proxy.connect_timeout",
	"proxy_request_timeout":    "proxy.request_timeout",
	"http_proxy":               "proxy.http_proxy",
	"https_proxy":              "proxy.https_proxy",
	"no_proxy":                 "proxy.no_proxy",
	"proxy_user_agent":         "proxy.user_agent",
	"proxy_stream_threshold":   "proxy.stream_threshold",
	"mask_server_url":          "proxy.mask_server_url",
	"mask_layer":               "proxy.mask_layer",
	"error_mask_color":         "proxy.error_mask_color",
	"max_insert_feature_types": "proxy.max_insert_feature_types",
	"proxy_host_rate_limit":    "proxy.host_rate_limit",
	"proxy_host_rate_burst":    "proxy.host_rate_burst",
	"proxy_breaker_enabled":    "proxy.breaker_enabled",

	"capabilities_cache_ttl":  "capabilities.cache_ttl",
	"capabilities_store_path": "capabilities.store_path",

	"auth_mode":            "security.auth_mode",
	"jwt_secret":           "security.jwt_secret",
	"session_timeout":      "security.session_timeout",
	"admin_username":       "security.admin_username",
	"admin_password":       "security.admin_password",
	"rate_limit_requests":  "security.rate_limit_requests",
	"rate_limit_window":    "security.rate_limit_window",
	"disable_rate_limit":   "security.rate_limit_disabled",
	"cors_origins":         "security.cors_origins",
	"casbin_model_path":    "security.casbin.model_path",
	"casbin_policy_path":   "security.casbin.policy_path",
	"casbin_cache_enabled": "security.casbin.cache_enabled",
	"casbin_cache_ttl":     "security.casbin.cache_ttl",

	"proxy_log_inline_limit":       "proxy_log.inline_limit",
	"proxy_log_attachments_dir":    "proxy_log.attachments_dir",
	"proxy_log_buffer_size":        "proxy_log.buffer_size",
	"proxy_log_retention_period":   "proxy_log.retention_period",
	"proxy_log_wal_enabled":        "proxy_log.wal_enabled",
	"proxy_log_wal_retry_interval": "proxy_log.wal_retry_interval",
	"proxy_log_wal_max_attempts":   "proxy_log.wal_max_attempts",
	"proxy_log_wal_entry_ttl":      "proxy_log.wal_entry_ttl",

	"job_workers":    "jobs.workers",
	"job_queue_size": "jobs.queue_size",
	"job_retention":  "jobs.retention",

	"audit_enabled":     "audit.enabled",
	"audit_buffer_size": "audit.buffer_size",
	"audit_retention":   "audit.retention",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps known environment variables to config keys.
// Unknown variables are dropped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
