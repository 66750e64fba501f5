// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import "errors"

// Sentinel errors for the kernel's failure taxonomy. All authorization
// failures wrap one of these; collaborators dispatch with errors.Is.
var (
	// ErrNotFound means no token of the requested capability type is
	// reachable anywhere in the scope chain.
	ErrNotFound = errors.New("capability: no token for capability type")

	// ErrExpired means a token was found but is past its declared
	// expiry. Expired tokens never become valid again.
	ErrExpired = errors.New("capability: token expired")

	// ErrValidationFailed means a token failed its integrity check
	// (tampering or corruption), exhausted its usage quota, or its
	// constraint denies the requested resource or operation.
	ErrValidationFailed = errors.New("capability: token validation failed")

	// ErrInsufficientPermission means a token of the right type exists
	// but does not cover the requested action. Raised by the guard
	// layer so callers can tell a missing grant from an out-of-grade
	// one.
	ErrInsufficientPermission = errors.New("capability: insufficient permission")

	// ErrNoScope means an operation that requires a current
	// authorization scope ran in a context with none installed.
	ErrNoScope = errors.New("capability: no authorization scope in context")
)
