// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package docs registers the OpenAPI description of the admin API with
// swag, which serves it at /swagger/doc.json. The general info mirrors the
// annotations in cmd/server/docs.go.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "AGPL-3.0-or-later",
            "url": "https://www.gnu.org/licenses/agpl-3.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/health/live": {"get": {"tags": ["Health"], "summary": "Liveness check", "security": [], "responses": {"200": {"description": "Process is alive", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/health/ready": {"get": {"tags": ["Health"], "summary": "Readiness check", "security": [], "responses": {"200": {"description": "Ready", "schema": {"$ref": "#/definitions/APIResponse"}}, "503": {"description": "A dependency is down", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/health/performance": {"get": {"tags": ["Health"], "summary": "Request latency statistics", "responses": {"200": {"description": "Statistics", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/auth/login": {"post": {"tags": ["Auth"], "summary": "Exchange credentials for a JWT", "security": [], "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}], "responses": {"200": {"description": "Token issued", "schema": {"$ref": "#/definitions/APIResponse"}}, "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/auth/me": {"get": {"tags": ["Auth"], "summary": "Current subject", "responses": {"200": {"description": "Subject", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/services": {
            "get": {"tags": ["Services"], "summary": "List registered services", "parameters": [{"$ref": "#/parameters/limit"}, {"$ref": "#/parameters/offset"}], "responses": {"200": {"description": "Services", "schema": {"$ref": "#/definitions/APIResponse"}}}},
            "post": {"tags": ["Services"], "summary": "Queue a service registration", "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}], "responses": {"202": {"description": "Registration job", "schema": {"$ref": "#/definitions/APIResponse"}}, "503": {"description": "Job queue full", "schema": {"$ref": "#/definitions/APIResponse"}}}}
        },
        "/services/{id}": {
            "get": {"tags": ["Services"], "summary": "Get a service", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "Service", "schema": {"$ref": "#/definitions/APIResponse"}}, "404": {"description": "Not found", "schema": {"$ref": "#/definitions/APIResponse"}}}},
            "patch": {"tags": ["Services"], "summary": "Update title and flags", "parameters": [{"$ref": "#/parameters/id"}, {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/ServiceUpdate"}}], "responses": {"200": {"description": "Service", "schema": {"$ref": "#/definitions/APIResponse"}}}},
            "delete": {"tags": ["Services"], "summary": "Delete a service and its grants", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"204": {"description": "Deleted"}}}
        },
        "/services/{id}/activate": {"post": {"tags": ["Services"], "summary": "Activate a service", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "Service", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/services/{id}/deactivate": {"post": {"tags": ["Services"], "summary": "Deactivate a service", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "Service", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/services/{id}/secure": {"post": {"tags": ["Services"], "summary": "Require grants for the service", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "Service", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/services/{id}/unsecure": {"post": {"tags": ["Services"], "summary": "Open the service to everyone", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "Service", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/services/{id}/logging": {"put": {"tags": ["Services"], "summary": "Toggle proxy access logging", "parameters": [{"$ref": "#/parameters/id"}, {"in": "body", "name": "body", "required": true, "schema": {"type": "object", "properties": {"enabled": {"type": "boolean"}}}}], "responses": {"200": {"description": "Service", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/services/{id}/capabilities/refresh": {"post": {"tags": ["Services"], "summary": "Drop the cached capabilities document", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "Invalidated", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/groups": {
            "get": {"tags": ["Groups"], "summary": "List groups", "responses": {"200": {"description": "Groups", "schema": {"$ref": "#/definitions/APIResponse"}}}},
            "post": {"tags": ["Groups"], "summary": "Create a group", "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/GroupRequest"}}], "responses": {"201": {"description": "Group", "schema": {"$ref": "#/definitions/APIResponse"}}, "409": {"description": "Name taken", "schema": {"$ref": "#/definitions/APIResponse"}}}}
        },
        "/groups/{id}": {
            "get": {"tags": ["Groups"], "summary": "Get a group", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "Group", "schema": {"$ref": "#/definitions/APIResponse"}}}},
            "delete": {"tags": ["Groups"], "summary": "Delete a group and its grants", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"204": {"description": "Deleted"}}}
        },
        "/groups/{id}/members": {"get": {"tags": ["Groups"], "summary": "List members", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "Users", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/groups/{id}/members/{userID}": {
            "put": {"tags": ["Groups"], "summary": "Add a member", "parameters": [{"$ref": "#/parameters/id"}, {"in": "path", "name": "userID", "type": "integer", "required": true}], "responses": {"204": {"description": "Added"}}},
            "delete": {"tags": ["Groups"], "summary": "Remove a member", "parameters": [{"$ref": "#/parameters/id"}, {"in": "path", "name": "userID", "type": "integer", "required": true}], "responses": {"204": {"description": "Removed"}}}
        },
        "/users": {
            "get": {"tags": ["Users"], "summary": "List users", "parameters": [{"$ref": "#/parameters/limit"}, {"$ref": "#/parameters/offset"}], "responses": {"200": {"description": "Users", "schema": {"$ref": "#/definitions/APIResponse"}}}},
            "post": {"tags": ["Users"], "summary": "Create a user", "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/UserRequest"}}], "responses": {"201": {"description": "User", "schema": {"$ref": "#/definitions/APIResponse"}}, "409": {"description": "Username taken", "schema": {"$ref": "#/definitions/APIResponse"}}}}
        },
        "/users/{id}": {
            "get": {"tags": ["Users"], "summary": "Get a user", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "User", "schema": {"$ref": "#/definitions/APIResponse"}}}},
            "delete": {"tags": ["Users"], "summary": "Delete a user", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"204": {"description": "Deleted"}}}
        },
        "/users/{id}/password": {"put": {"tags": ["Users"], "summary": "Set a password", "parameters": [{"$ref": "#/parameters/id"}, {"in": "body", "name": "body", "required": true, "schema": {"type": "object", "properties": {"password": {"type": "string", "minLength": 8}}}}], "responses": {"204": {"description": "Changed"}}}},
        "/allowed-operations": {
            "get": {"tags": ["Access"], "summary": "List grants", "parameters": [{"in": "query", "name": "service_id", "type": "integer"}], "responses": {"200": {"description": "Grants", "schema": {"$ref": "#/definitions/APIResponse"}}}},
            "post": {"tags": ["Access"], "summary": "Grant a group operations on a service", "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/AllowedOperationRequest"}}], "responses": {"201": {"description": "Grant", "schema": {"$ref": "#/definitions/APIResponse"}}, "400": {"description": "Invalid operations or area", "schema": {"$ref": "#/definitions/APIResponse"}}}}
        },
        "/allowed-operations/{id}": {
            "get": {"tags": ["Access"], "summary": "Get a grant", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "Grant", "schema": {"$ref": "#/definitions/APIResponse"}}}},
            "delete": {"tags": ["Access"], "summary": "Revoke a grant", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"204": {"description": "Revoked"}}}
        },
        "/proxy-logs": {"get": {"tags": ["Logs"], "summary": "Page through proxy access logs", "parameters": [{"in": "query", "name": "service_id", "type": "integer"}, {"in": "query", "name": "username", "type": "string"}, {"in": "query", "name": "operation", "type": "string"}, {"in": "query", "name": "since", "type": "string", "format": "date-time"}, {"in": "query", "name": "until", "type": "string", "format": "date-time"}, {"$ref": "#/parameters/limit"}, {"$ref": "#/parameters/offset"}], "responses": {"200": {"description": "Log entries", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/proxy-logs/{id}": {"get": {"tags": ["Logs"], "summary": "Get one proxy log entry", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "Log entry", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/audit-events": {"get": {"tags": ["Logs"], "summary": "Page through the admin audit trail", "parameters": [{"in": "query", "name": "type", "type": "string"}, {"in": "query", "name": "actor", "type": "string"}, {"in": "query", "name": "target_type", "type": "string"}, {"in": "query", "name": "target_id", "type": "string"}, {"in": "query", "name": "since", "type": "string", "format": "date-time"}, {"in": "query", "name": "until", "type": "string", "format": "date-time"}, {"$ref": "#/parameters/limit"}, {"$ref": "#/parameters/offset"}], "responses": {"200": {"description": "Audit events", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/jobs": {"get": {"tags": ["Jobs"], "summary": "List background jobs", "responses": {"200": {"description": "Jobs", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/jobs/{id}": {"get": {"tags": ["Jobs"], "summary": "Get job progress", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "Job", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/ws": {"get": {"tags": ["Jobs"], "summary": "WebSocket stream of job updates", "responses": {"101": {"description": "Switching protocols"}}}}
    },
    "parameters": {
        "id": {"in": "path", "name": "id", "type": "integer", "required": true},
        "limit": {"in": "query", "name": "limit", "type": "integer", "maximum": 1000},
        "offset": {"in": "query", "name": "offset", "type": "integer"}
    },
    "definitions": {
        "APIResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"$ref": "#/definitions/Meta"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "VALIDATION_ERROR"},
                "message": {"type": "string"},
                "request_id": {"type": "string"},
                "details": {"type": "object"}
            }
        },
        "Meta": {
            "type": "object",
            "properties": {
                "timestamp": {"type": "string", "format": "date-time"},
                "total": {"type": "integer"},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["username", "password"],
            "properties": {"username": {"type": "string"}, "password": {"type": "string"}}
        },
        "RegisterRequest": {
            "type": "object",
            "required": ["url"],
            "properties": {
                "url": {"type": "string", "example": "https://maps.example.org/wms?SERVICE=WMS&REQUEST=GetCapabilities"},
                "type": {"type": "string", "enum": ["WMS", "WFS"]},
                "version": {"type": "string"},
                "title": {"type": "string"},
                "is_active": {"type": "boolean"},
                "is_secured": {"type": "boolean"},
                "log_proxy_access": {"type": "boolean"}
            }
        },
        "ServiceUpdate": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "is_active": {"type": "boolean"},
                "is_secured": {"type": "boolean"},
                "log_proxy_access": {"type": "boolean"}
            }
        },
        "GroupRequest": {
            "type": "object",
            "required": ["name"],
            "properties": {"name": {"type": "string"}, "description": {"type": "string"}}
        },
        "UserRequest": {
            "type": "object",
            "required": ["username", "password"],
            "properties": {"username": {"type": "string"}, "password": {"type": "string", "minLength": 8}, "is_superuser": {"type": "boolean"}}
        },
        "AllowedOperationRequest": {
            "type": "object",
            "required": ["service_id", "group_id", "operations"],
            "properties": {
                "service_id": {"type": "integer"},
                "group_id": {"type": "integer"},
                "operations": {"type": "array", "items": {"type": "string", "example": "GetMap"}},
                "description": {"type": "string"},
                "allowed_area": {"description": "WKT string or GeoJSON Polygon, MultiPolygon or Feature enclosing a surface. Null leaves the grant unrestricted."}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "MrMap Proxy Admin API",
	Description:      "Administration of registered OGC services, groups, users, grants, proxy logs, audit events and jobs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
