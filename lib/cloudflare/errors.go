// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package cloudflare

import (
	"errors"
	"fmt"
)

// APIError is a structured error from the Cloudflare API envelope.
// Callers can use errors.As to extract it:
//
//	var apiErr *cloudflare.APIError
//	if errors.As(err, &apiErr) {
//	    if apiErr.Code == cloudflare.CodeAuthenticationError { ... }
//	}
type APIError struct {
	// Code is the numeric Cloudflare error code (e.g., 10000).
	Code int `json:"code"`
	// Message is the human-readable description from the API.
	Message string `json:"message"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudflare: error %d (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Cloudflare error codes this tool reacts to.
const (
	// CodeAuthenticationError covers missing or malformed credentials.
	CodeAuthenticationError = 10000
	// CodeInvalidToken covers expired or revoked API tokens.
	CodeInvalidToken = 9109
)

// IsAPIError checks whether err is an *APIError with the given code.
func IsAPIError(err error, code int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
