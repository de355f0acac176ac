// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// @title MrMap Proxy Admin API
// @version 1.0
// @description Administration of registered OGC services, groups, users, grants, proxy logs, audit events and jobs.
// @description
// @description ## Authentication
// @description
// @description Obtain a token from `/api/v1/auth/login` and send it as `Authorization: Bearer <token>`.
// @description Only superusers may change services, groups, users and grants.
// @description
// @description The OGC facade itself lives at `/ows/{serviceID}` and is not part of this API.
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @BasePath /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main
