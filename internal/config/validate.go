// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package config

import (
	"fmt"
	"image/color"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateProxy(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateProxyLog(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if err := validateAbsoluteURL("EXTERNAL_URL", c.Server.ExternalURL); err != nil {
		return err
	}
	if c.Server.DefaultPageSize < 1 || c.Server.MaxPageSize < c.Server.DefaultPageSize {
		return fmt.Errorf("page sizes invalid: default %d, max %d", c.Server.DefaultPageSize, c.Server.MaxPageSize)
	}
	return nil
}

func (c *Config) validateProxy() error {
	p := c.Proxy
	if p.ConnectTimeout <= 0 || p.RequestTimeout <= 0 {
		return fmt.Errorf("proxy timeouts must be positive")
	}
	if p.StreamThreshold <= 0 {
		return fmt.Errorf("PROXY_STREAM_THRESHOLD must be positive, got %d", p.StreamThreshold)
	}
	for name, raw := range map[string]string{"HTTP_PROXY": p.HTTPProxy, "HTTPS_PROXY": p.HTTPSProxy, "MASK_SERVER_URL": p.MaskServerURL} {
		if raw == "" {
			continue
		}
		if err := validateAbsoluteURL(name, raw); err != nil {
			return err
		}
	}
	if _, err := ParseHexColor(p.ErrorMaskColor); err != nil {
		return fmt.Errorf("ERROR_MASK_COLOR: %w", err)
	}
	if p.MaxInsertFeatureTypes < 0 {
		return fmt.Errorf("MAX_INSERT_FEATURE_TYPES must not be negative")
	}
	if p.HostRateLimit < 0 {
		return fmt.Errorf("PROXY_HOST_RATE_LIMIT must not be negative")
	}
	return nil
}

var validAuthModes = map[string]bool{"none": true, "basic": true, "jwt": true, "multi": true}

func (c *Config) validateSecurity() error {
	s := c.Security
	if !validAuthModes[s.AuthMode] {
		return fmt.Errorf("AUTH_MODE must be one of none, basic, jwt, multi; got %q", s.AuthMode)
	}
	if (s.AuthMode == "jwt" || s.AuthMode == "multi") && len(s.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters when AUTH_MODE=%s", s.AuthMode)
	}
	if (s.AdminUsername == "") != (s.AdminPassword == "") {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}
	if !s.RateLimitDisabled {
		if s.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
		}
		if s.RateLimitWindow < time.Second {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s")
		}
	}
	return nil
}

func (c *Config) validateProxyLog() error {
	if c.ProxyLog.InlineLimit < 0 {
		return fmt.Errorf("PROXY_LOG_INLINE_LIMIT must not be negative")
	}
	if c.ProxyLog.BufferSize < 1 {
		return fmt.Errorf("PROXY_LOG_BUFFER_SIZE must be at least 1")
	}
	if c.ProxyLog.WALEnabled && c.ProxyLog.WALRetryInterval <= 0 {
		return fmt.Errorf("PROXY_LOG_WAL_RETRY_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("JOB_WORKERS must be at least 1")
	}
	if c.Jobs.QueueSize < 1 {
		return fmt.Errorf("JOB_QUEUE_SIZE must be at least 1")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be at least 1")
	}
	if c.Audit.Retention < 0 {
		return fmt.Errorf("AUDIT_RETENTION must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func validateAbsoluteURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
	}
	return nil
}

// ParseHexColor parses #RRGGBB or #RRGGBBAA.
func ParseHexColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) != 6 && len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("color %q must be #RRGGBB or #RRGGBBAA", s)
	}
	if len(h) == 6 {
		h += "ff"
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
