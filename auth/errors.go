// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import "fmt"

// ClientErrorCode classifies a ClientError the way the authorization
// server's own error codes do (RFC 6749 §5.2), so the auth flow can
// decide whether a failure is worth retrying after invalidating state.
type ClientErrorCode string

const (
	ErrCodeInvalidRequest ClientErrorCode = "invalid_request"
	ErrCodeInvalidClient  ClientErrorCode = "invalid_client"
	ErrCodeInvalidGrant   ClientErrorCode = "invalid_grant"
	ErrCodeUnauthorized   ClientErrorCode = "unauthorized"
	ErrCodeNetwork        ClientErrorCode = "network"
	ErrCodeServer         ClientErrorCode = "server"
	ErrCodeStorage        ClientErrorCode = "storage"
)

// ClientError is returned by every OAuthClientProvider and flow
// operation in this package.
type ClientError struct {
	Code    ClientErrorCode
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ClientErrorCode, format string, args ...any) *ClientError {
	return &ClientError{Code: code, Message: fmt.Sprintf(format, args...)}
}
