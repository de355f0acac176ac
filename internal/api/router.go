// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	// OpenAPI description served under /swagger/
	_ "github.com/mrmap-community/mrmap-proxy/docs"
	"github.com/mrmap-community/mrmap-proxy/internal/authz"
	"github.com/mrmap-community/mrmap-proxy/internal/middleware"
)

// Router assembles the HTTP routes.
type Router struct {
	handler *Handler
	deps    Deps
	chi     *ChiMiddleware
	authz   *authz.Middleware
}

// NewRouter creates a Router.
func NewRouter(d Deps) *Router {
	return &Router{
		handler: NewHandler(d),
		deps:    d,
		chi:     NewChiMiddleware(ChiMiddlewareConfigFrom(&d.Config.Security)),
		authz:   authz.NewMiddleware(d.Enforcer),
	}
}

// Handler returns the admin API handler.
func (rt *Router) Handler() *Handler { return rt.handler }

// SetupChi builds the route tree.
func (rt *Router) SetupChi() http.Handler {
	h := rt.handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	if rt.deps.Performance != nil {
		r.Use(rt.deps.Performance.Middleware)
	}

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	if rt.deps.Proxy != nil {
		ows := rt.deps.Auth.Optional(rt.deps.Proxy)
		r.Method(http.MethodGet, "/ows/{serviceID}", ows)
		r.Method(http.MethodPost, "/ows/{serviceID}", ows)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.chi.CORS())
		r.Use(APISecurityHeaders())

		r.Group(func(r chi.Router) {
			r.Use(rt.chi.RateLimitCustom(RateLimitHealth))
			r.Get("/health/live", h.HealthLive)
			r.Get("/health/ready", h.HealthReady)
		})

		r.With(rt.chi.RateLimitCustom(RateLimitLogin)).Post("/auth/login", h.Login)

		if rt.deps.WebSocket != nil {
			r.With(rt.deps.Auth.Required, rt.authz.AuthorizeRequest).Get("/ws", rt.deps.WebSocket.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(rt.deps.Auth.Required)
			r.Use(rt.authz.AuthorizeRequest)
			r.Use(middleware.Compression)
			r.Use(rt.chi.RateLimit())

			r.Get("/health/performance", h.HealthPerformance)
			r.Get("/auth/me", h.Me)

			r.Route("/services", func(r chi.Router) {
				r.Get("/", h.ListServices)
				r.With(rt.chi.RateLimitCustom(RateLimitRegister)).Post("/", h.RegisterService)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetService)
					r.Patch("/", h.UpdateService)
					r.Delete("/", h.DeleteService)
					r.Post("/activate", h.serviceFlag(setActive, true))
					r.Post("/deactivate", h.serviceFlag(setActive, false))
					r.Post("/secure", h.serviceFlag(setSecured, true))
					r.Post("/unsecure", h.serviceFlag(setSecured, false))
					r.Put("/logging", h.SetServiceLogging)
					r.Post("/capabilities/refresh", h.RefreshCapabilities)
				})
			})

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", h.ListGroups)
				r.Post("/", h.CreateGroup)
				r.Get("/{id}", h.GetGroup)
				r.Delete("/{id}", h.DeleteGroup)
				r.Get("/{id}/members", h.ListMembers)
				r.Put("/{id}/members/{userID}", h.AddMember)
				r.Delete("/{id}/members/{userID}", h.RemoveMember)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.ListUsers)
				r.Post("/", h.CreateUser)
				r.Get("/{id}", h.GetUser)
				r.Delete("/{id}", h.DeleteUser)
				r.Put("/{id}/password", h.SetPassword)
			})

			r.Route("/allowed-operations", func(r chi.Router) {
				r.Get("/", h.ListAllowedOperations)
				r.Post("/", h.CreateAllowedOperation)
				r.Get("/{id}", h.GetAllowedOperation)
				r.Delete("/{id}", h.DeleteAllowedOperation)
			})

			r.Get("/proxy-logs", h.ListProxyLogs)
			r.Get("/proxy-logs/{id}", h.GetProxyLog)

			r.Get("/audit-events", h.ListAuditEvents)

			r.Get("/jobs", h.ListJobs)
			r.Get("/jobs/{id}", h.GetJob)
		})
	})

	return r
}
