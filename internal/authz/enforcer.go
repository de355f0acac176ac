// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package authz decides whether a subject may perform an action, using
// Casbin. Service grants come from the database; the admin API is guarded
// by path policies.
package authz

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/mrmap-community/mrmap-proxy/internal/cache"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// EnforcerConfig holds configuration for the Casbin enforcer.
type EnforcerConfig struct {
	// ModelPath and PolicyPath override the embedded files when set.
	ModelPath  string
	PolicyPath string

	CacheEnabled bool
	CacheTTL     time.Duration
}

// DefaultEnforcerConfig returns default configuration.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{CacheEnabled: true, CacheTTL: 5 * time.Minute}
}

// PolicySource provides the grant rows synchronised into the enforcer.
type PolicySource interface {
	ListAllowedOperations(ctx context.Context, serviceID *int64) ([]models.AllowedOperation, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	Memberships(ctx context.Context) ([][2]string, error)
}

// Enforcer wraps a Casbin enforcer. Sync rebuilds the policy in a fresh
// enforcer and swaps it in, so readers never observe a partial policy.
type Enforcer struct {
	config *EnforcerConfig

	mu       sync.RWMutex
	enforcer *casbin.SyncedEnforcer
	cache    *cache.Cache[bool]
}

// NewEnforcer creates an enforcer holding the static policy only.
func NewEnforcer(config *EnforcerConfig) (*Enforcer, error) {
	if config == nil {
		config = DefaultEnforcerConfig()
	}
	e := &Enforcer{config: config}
	base, err := e.build(nil)
	if err != nil {
		return nil, err
	}
	e.enforcer = base
	if config.CacheEnabled {
		e.cache = cache.New[bool](config.CacheTTL)
	}
	return e, nil
}

func (e *Enforcer) loadModel() (model.Model, error) {
	if e.config.ModelPath != "" && fileExists(e.config.ModelPath) {
		return model.NewModelFromFile(e.config.ModelPath)
	}
	return model.NewModelFromString(embeddedModel)
}

// build creates an enforcer with the static policy plus extra rules.
func (e *Enforcer) build(extra [][]string) (*casbin.SyncedEnforcer, error) {
	m, err := e.loadModel()
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if e.config.PolicyPath != "" && fileExists(e.config.PolicyPath) {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(e.config.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadPolicyLines(enforcer, strings.Split(embeddedPolicy, "\n"))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	for _, rule := range extra {
		if err := addRule(enforcer, rule); err != nil {
			return nil, err
		}
	}
	return enforcer, nil
}

// loadPolicyLines parses CSV policy lines ("p, sub, obj, act" / "g, a, b").
func loadPolicyLines(enforcer *casbin.SyncedEnforcer, lines []string) error {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := addRule(enforcer, parts); err != nil {
			return err
		}
	}
	return nil
}

func addRule(enforcer *casbin.SyncedEnforcer, rule []string) error {
	if len(rule) < 3 {
		return nil
	}
	switch rule[0] {
	case "p":
		if len(rule) < 4 {
			return nil
		}
		if _, err := enforcer.AddPolicy(rule[1], rule[2], rule[3]); err != nil {
			return fmt.Errorf("failed to add policy %v: %w", rule, err)
		}
	case "g":
		if _, err := enforcer.AddGroupingPolicy(rule[1], rule[2]); err != nil {
			return fmt.Errorf("failed to add grouping policy %v: %w", rule, err)
		}
	}
	return nil
}

// Sync reloads grants and memberships from src.
func (e *Enforcer) Sync(ctx context.Context, src PolicySource) error {
	start := time.Now()
	rules, err := grantRules(ctx, src)
	if err != nil {
		RecordPolicyReload(false)
		return err
	}
	next, err := e.build(rules)
	if err != nil {
		RecordPolicyReload(false)
		return err
	}

	e.mu.Lock()
	e.enforcer = next
	e.mu.Unlock()
	if e.cache != nil {
		e.cache.Clear()
	}

	RecordPolicyReload(true)
	logging.Ctx(ctx).Info().
		Int("rules", len(rules)).
		Dur("duration", time.Since(start)).
		Msg("Authorization policy synchronised")
	return nil
}

func grantRules(ctx context.Context, src PolicySource) ([][]string, error) {
	groups, err := src.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	names := make(map[int64]string, len(groups))
	for _, g := range groups {
		names[g.ID] = g.Name
	}

	ops, err := src.ListAllowedOperations(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load allowed operations: %w", err)
	}
	var rules [][]string
	for _, ao := range ops {
		name, ok := names[ao.GroupID]
		if !ok {
			continue
		}
		for _, op := range ao.Operations {
			rules = append(rules, []string{"p", GroupSubject(name), ServiceObject(ao.ServiceID), OperationAction(op)})
		}
	}

	members, err := src.Memberships(ctx)
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}
	for _, m := range members {
		rules = append(rules, []string{"g", UserSubject(m[0]), GroupSubject(m[1])})
	}
	return rules, nil
}

// UserSubject, GroupSubject, ServiceObject and OperationAction build the
// policy identifiers.
func UserSubject(username string) string { return "user:" + username }

func GroupSubject(name string) string { return "group:" + name }

func ServiceObject(id int64) string { return "service:" + strconv.FormatInt(id, 10) }

func OperationAction(op string) string { return strings.ToLower(strings.TrimSpace(op)) }

// Enforce checks if the subject can perform the action on the object.
func (e *Enforcer) Enforce(subject, object, action string) (bool, error) {
	start := time.Now()
	key := subject + "|" + object + "|" + action
	if e.cache != nil {
		if allowed, ok := e.cache.Get(key); ok {
			RecordAuthzDecision(action, allowed, time.Since(start), true)
			return allowed, nil
		}
	}

	e.mu.RLock()
	enforcer := e.enforcer
	e.mu.RUnlock()

	allowed, err := enforcer.Enforce(subject, object, action)
	if err != nil {
		RecordAuthzError()
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	if e.cache != nil {
		e.cache.Set(key, allowed)
	}
	RecordAuthzDecision(action, allowed, time.Since(start), false)
	return allowed, nil
}

// EnforceWithRoles checks the subject and then each of its roles.
func (e *Enforcer) EnforceWithRoles(subject string, roles []string, object, action string) (bool, error) {
	if allowed, err := e.Enforce(subject, object, action); err != nil || allowed {
		return allowed, err
	}
	for _, role := range roles {
		if allowed, err := e.Enforce(role, object, action); err != nil || allowed {
			return allowed, err
		}
	}
	return false, nil
}

// Entitled reports whether username (with roles) holds a grant for
// operation on a service, ignoring any spatial restriction.
func (e *Enforcer) Entitled(username string, roles []string, serviceID int64, operation string) (bool, error) {
	return e.EnforceWithRoles(UserSubject(username), roles, ServiceObject(serviceID), OperationAction(operation))
}

// GetPolicy returns all policy rules.
func (e *Enforcer) GetPolicy() [][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	//nolint:errcheck // only fails on a nil model
	policies, _ := e.enforcer.GetPolicy()
	return policies
}

// GetGroupingPolicy returns all role inheritance rules.
func (e *Enforcer) GetGroupingPolicy() [][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	//nolint:errcheck // only fails on a nil model
	policies, _ := e.enforcer.GetGroupingPolicy()
	return policies
}

// Close stops the decision cache.
func (e *Enforcer) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
