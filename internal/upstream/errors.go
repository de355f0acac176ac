// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"
)

// Error codes reported to clients when the origin cannot be reached.
const (
	CodeGatewayTimeout     = "GatewayTimeout"
	CodeBadGateway         = "BadGateway"
	CodeServiceUnavailable = "ServiceUnavailable"
)

// Error is a failed fetch translated to the status the proxy answers with.
type Error struct {
	StatusCode int
	Code       string
	Content    string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream %d %s: %s", e.StatusCode, e.Code, e.Content)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps transport errors: timeouts to 504, connection failures to
// 502, open circuit breakers to 503 and anything else to 500 carrying the
// Go type name of the underlying error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}

	var (
		netErr net.Error
		opErr  *net.OpError
		dnsErr *net.DNSError
	)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &Error{StatusCode: http.StatusServiceUnavailable, Code: CodeServiceUnavailable, Content: "origin temporarily unavailable", Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &Error{StatusCode: http.StatusGatewayTimeout, Code: CodeGatewayTimeout, Content: "origin did not respond in time", Err: err}
	case errors.As(err, &dnsErr), errors.As(err, &opErr):
		return &Error{StatusCode: http.StatusBadGateway, Code: CodeBadGateway, Content: "origin could not be reached", Err: err}
	}
	return &Error{StatusCode: http.StatusInternalServerError, Code: rootTypeName(err), Content: err.Error(), Err: err}
}

func rootTypeName(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
