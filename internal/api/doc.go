// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

/*
Package api is the admin REST API and the HTTP entry point of the proxy.

Routes:

	GET    /api/v1/health/live                  liveness
	GET    /api/v1/health/ready                 database reachable
	GET    /api/v1/health/performance           latency percentiles (admin)
	POST   /api/v1/auth/login                   username/password -> JWT
	GET    /api/v1/auth/me                      current subject

	GET    /api/v1/services                     list (type, active, search, limit, offset)
	POST   /api/v1/services                     register, returns a job (202)
	GET    /api/v1/services/{id}
	PATCH  /api/v1/services/{id}                title and flags
	DELETE /api/v1/services/{id}
	POST   /api/v1/services/{id}/activate       also deactivate, secure, unsecure
	PUT    /api/v1/services/{id}/logging        {"enabled": bool}
	POST   /api/v1/services/{id}/capabilities/refresh

	/api/v1/groups, /api/v1/groups/{id}/members/{userID}
	/api/v1/users, /api/v1/users/{id}/password
	/api/v1/allowed-operations                  area as WKT or GeoJSON
	/api/v1/proxy-logs
	/api/v1/jobs, /api/v1/jobs/{id}
	/api/v1/ws                                  job progress and proxy activity

	GET|POST /ows/{serviceID}                   the secured OGC endpoint
	GET      /metrics                           Prometheus

Every /api/v1 response uses the models.APIResponse envelope. The OWS endpoint
answers with OGC documents and exception reports instead.

Routes under /api/v1 other than health and login require authentication and
are authorized by the Casbin policy using the request path as object and
read/write/delete as action. Changes to groups, memberships and allowed
operations resynchronise the enforcer.
*/
package api
