// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package base

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind is the closed failure taxonomy surfaced to callers. Connectors
// never let a raw transport error cross their boundary: every failure is
// mapped to one of these kinds first.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindTimeout      ErrorKind = "timeout"
	KindUnreachable  ErrorKind = "unreachable"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindUpstream     ErrorKind = "upstream"
	KindDuplicate    ErrorKind = "duplicate"
)

// ConnectorError is the typed failure returned by connector operations and
// by the registry's duplicate check.
type ConnectorError struct {
	Family    Family
	Operation string
	Kind      ErrorKind
	Message   string
	Cause     error
}

func (e *ConnectorError) Error() string {
	msg := fmt.Sprintf("%s.%s [%s]: %s", e.Family, e.Operation, e.Kind, e.Message)
	if e.Cause != nil {
		msg += " (cause: " + e.Cause.Error() + ")"
	}
	return msg
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a typed connector error.
func NewConnectorError(family Family, operation string, kind ErrorKind, message string, cause error) *ConnectorError {
	return &ConnectorError{
		Family:    family,
		Operation: operation,
		Kind:      kind,
		Message:   message,
		Cause:     cause,
	}
}

// NewValidationError reports a malformed or missing credential field.
func NewValidationError(family Family, field, message string) *ConnectorError {
	if field != "" {
		message = field + ": " + message
	}
	return NewConnectorError(family, "Validate", KindValidation, message, nil)
}

// NewDuplicateError reports a second add on an occupied singleton family.
func NewDuplicateError(family Family) *ConnectorError {
	return NewConnectorError(family, "Add", KindDuplicate,
		fmt.Sprintf("a %s integration is already configured", family), nil)
}

// KindOf extracts the error kind, defaulting to upstream for foreign errors.
func KindOf(err error) ErrorKind {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUpstream
}

// FromTransport translates a transport-level failure (timeout, DNS,
// connection refused) into the closed taxonomy.
func FromTransport(family Family, operation string, err error) *ConnectorError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewConnectorError(family, operation, KindTimeout, "probe exceeded deadline", err)
	case errors.Is(err, context.Canceled):
		return NewConnectorError(family, operation, KindTimeout, "probe cancelled", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewConnectorError(family, operation, KindTimeout, "probe exceeded deadline", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewConnectorError(family, operation, KindUnreachable, "host not found: "+dnsErr.Name, err)
	}

	return NewConnectorError(family, operation, KindUnreachable, "service unreachable", err)
}

// FromStatus translates an upstream HTTP status into the closed taxonomy.
// 2xx statuses return nil.
func FromStatus(family Family, operation string, statusCode int, body string) *ConnectorError {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	body = strings.TrimSpace(body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return NewConnectorError(family, operation, KindUnauthorized, "credentials rejected (HTTP 401)", nil)
	case http.StatusForbidden:
		return NewConnectorError(family, operation, KindForbidden, "access denied (HTTP 403)", nil)
	default:
		msg := fmt.Sprintf("upstream returned HTTP %d", statusCode)
		if body != "" {
			msg += ": " + body
		}
		return NewConnectorError(family, operation, KindUpstream, msg, nil)
	}
}
