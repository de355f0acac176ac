// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Command server runs the MrMap security proxy: the /ows/{serviceID}
// facade in front of registered WMS and WFS services and the admin API
// that manages services, groups and allowed operations.
//
// Configuration comes from built-in defaults, an optional config.yaml and
// the environment, in increasing priority. See internal/config.
//
// The server shuts down gracefully on SIGINT and SIGTERM: the listener stops
// accepting connections, in-flight requests get the shutdown timeout, and
// queued proxy log entries are written before exit.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/mrmap-community/mrmap-proxy/internal/api"
	"github.com/mrmap-community/mrmap-proxy/internal/audit"
	"github.com/mrmap-community/mrmap-proxy/internal/auth"
	"github.com/mrmap-community/mrmap-proxy/internal/authz"
	"github.com/mrmap-community/mrmap-proxy/internal/cache"
	"github.com/mrmap-community/mrmap-proxy/internal/capabilities"
	"github.com/mrmap-community/mrmap-proxy/internal/config"
	"github.com/mrmap-community/mrmap-proxy/internal/database"
	"github.com/mrmap-community/mrmap-proxy/internal/jobs"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/mask"
	"github.com/mrmap-community/mrmap-proxy/internal/middleware"
	"github.com/mrmap-community/mrmap-proxy/internal/proxy"
	"github.com/mrmap-community/mrmap-proxy/internal/proxylog"
	"github.com/mrmap-community/mrmap-proxy/internal/supervisor"
	"github.com/mrmap-community/mrmap-proxy/internal/supervisor/services"
	"github.com/mrmap-community/mrmap-proxy/internal/upstream"
	"github.com/mrmap-community/mrmap-proxy/internal/wal"
	ws "github.com/mrmap-community/mrmap-proxy/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// policyResyncInterval reloads grants that were changed outside the API.
const policyResyncInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
		App:       "mrmap-proxy",
		Version:   version,
	})
	logging.Info().Str("external_url", cfg.Server.ExternalURL).Msg("Starting MrMap proxy")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer closeLogged("database", db.Close)

	kv, err := cache.OpenBadger(cfg.Capabilities.StorePath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open capabilities store")
	}
	defer closeLogged("capabilities store", kv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bootstrapAccounts(ctx, db, &cfg.Security); err != nil {
		logging.Fatal().Err(err).Msg("Failed to create built-in accounts")
	}

	app, err := build(cfg, db, kv)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialise components")
	}
	defer app.close()

	if err := app.enforcer.Sync(ctx, db); err != nil {
		logging.Fatal().Err(err).Msg("Failed to load access policy")
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{ShutdownTimeout: 15 * time.Second})
	tree.AddDataService(app.proxyLogs)
	if app.audit != nil {
		tree.AddDataService(app.audit)
	}
	tree.AddDataService(services.NewPeriodicService("policy-resync", policyResyncInterval, func(ctx context.Context) error {
		return app.enforcer.Sync(ctx, db)
	}))
	tree.AddMessagingService(app.hub)
	tree.AddMessagingService(app.jobs)
	tree.AddAPIService(services.NewHTTPServerService(app.server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", app.server.Addr).Msg("Serving")
	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped")
	}
	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, u := range unstopped {
			logging.Warn().Str("service", u.Name).Msg("Service did not stop in time")
		}
	}
	logging.Info().Msg("Shutdown complete")
}

type application struct {
	enforcer  *authz.Enforcer
	caps      *capabilities.Service
	hub       *ws.Hub
	jobs      *jobs.Runner
	proxyLogs *proxylog.Logger
	audit     *audit.Logger
	server    *http.Server
}

func (a *application) close() {
	a.caps.Close()
	a.enforcer.Close()
}

// build wires the components.
func build(cfg *config.Config, db *database.DB, kv *badger.DB) (*application, error) {
	client := upstream.New(upstream.Config{
		ConnectTimeout: cfg.Proxy.ConnectTimeout,
		RequestTimeout: cfg.Proxy.RequestTimeout,
		HTTPProxy:      cfg.Proxy.HTTPProxy,
		HTTPSProxy:     cfg.Proxy.HTTPSProxy,
		NoProxy:        cfg.Proxy.NoProxy,
		UserAgent:      cfg.Proxy.UserAgent,
		HostRateLimit:  cfg.Proxy.HostRateLimit,
		HostRateBurst:  cfg.Proxy.HostRateBurst,
		BreakerEnabled: cfg.Proxy.BreakerEnabled,
	})

	caps := capabilities.New(client, cache.NewBadgerStore(kv, "capabilities/"), cfg.Server.ExternalURL, cfg.Capabilities.CacheTTL)

	enforcer, err := authz.NewEnforcer(&authz.EnforcerConfig{
		ModelPath:    cfg.Security.Casbin.ModelPath,
		PolicyPath:   cfg.Security.Casbin.PolicyPath,
		CacheEnabled: cfg.Security.Casbin.CacheEnabled,
		CacheTTL:     cfg.Security.Casbin.CacheTTL,
	})
	if err != nil {
		caps.Close()
		return nil, err
	}

	mode, err := auth.ParseAuthMode(cfg.Security.AuthMode)
	if err != nil {
		return nil, err
	}
	var jwtManager *auth.JWTManager
	if cfg.Security.JWTSecret != "" {
		if jwtManager, err = auth.NewJWTManager(&cfg.Security); err != nil {
			return nil, err
		}
	}

	errorColor, err := config.ParseHexColor(cfg.Proxy.ErrorMaskColor)
	if err != nil {
		return nil, err
	}
	var masks mask.Source = mask.Rasterizer{}
	if cfg.Proxy.MaskServerURL != "" {
		masks = mask.NewRemote(client, cfg.Proxy.MaskServerURL, cfg.Proxy.MaskLayer)
	}

	var auditLog *audit.Logger
	if cfg.Audit.Enabled {
		store := audit.NewDuckDBStore(db.Conn())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := store.CreateTable(ctx)
		cancel()
		if err != nil {
			return nil, err
		}
		auditLog = audit.NewLogger(store, cfg.Audit)
	}

	hub := ws.NewHub()
	proxyLogs := proxylog.New(db, cfg.ProxyLog, hub)
	if cfg.ProxyLog.WALEnabled {
		proxyLogs.WithWAL(wal.New(kv, wal.Config{
			EntryTTL:    cfg.ProxyLog.WALEntryTTL,
			MaxAttempts: cfg.ProxyLog.WALMaxAttempts,
			MinAge:      cfg.ProxyLog.WALRetryInterval,
		}), cfg.ProxyLog.WALRetryInterval)
	}
	runner := jobs.NewRunner(cfg.Jobs, cache.NewBadgerStore(kv, "jobs/"), hub)

	ows := proxy.New(proxy.Config{
		StreamThreshold:       cfg.Proxy.StreamThreshold,
		ErrorColor:            errorColor,
		MaxInsertFeatureTypes: cfg.Proxy.MaxInsertFeatureTypes,
	}, proxy.Deps{
		Services:     db,
		Entitlement:  enforcer,
		Fetcher:      client,
		Capabilities: caps,
		Masks:        masks,
		Logs:         proxyLogs,
	})

	router := api.NewRouter(api.Deps{
		Config:       cfg,
		DB:           db,
		Enforcer:     enforcer,
		Auth:         auth.NewMiddleware(auth.NewAuthenticator(mode, db, jwtManager)),
		JWT:          jwtManager,
		Capabilities: caps,
		Jobs:         runner,
		Registrar:    jobs.NewRegistrar(caps, db),
		Performance:  middleware.NewPerformanceMonitor(1000, time.Second),
		Audit:        auditLog,
		WebSocket:    ws.Handler(hub, cfg.Security.CORSOrigins),
		Proxy:        ows,
	})

	server := &http.Server{
		Addr:              cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	return &application{
		enforcer:  enforcer,
		caps:      caps,
		hub:       hub,
		jobs:      runner,
		proxyLogs: proxyLogs,
		audit:     auditLog,
		server:    server,
	}, nil
}

func closeLogged(what string, fn func() error) {
	if err := fn(); err != nil {
		logging.Warn().Err(err).Str("component", what).Msg("Close failed")
	}
}
