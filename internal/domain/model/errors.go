package model

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is returned when a toggle targets a campaign that is not
// present in the metrics cache.
var ErrCampaignNotFound = errors.New("campaign not found")

// ConfigError reports missing or invalid static configuration.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// UnsupportedProviderError is a client input error naming a provider outside
// the supported set.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q", e.Provider)
}

// InvalidStatusError is returned for toggle targets other than ACTIVE or PAUSED.
type InvalidStatusError struct {
	Status string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid campaign status %q: expected ACTIVE or PAUSED", e.Status)
}

// UpstreamAuthError reports a failed authorization-code exchange.
type UpstreamAuthError struct {
	Provider   Provider
	StatusCode int
	Err        error
}

func (e *UpstreamAuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s token exchange failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s token exchange failed: %v", e.Provider, e.Err)
}

func (e *UpstreamAuthError) Unwrap() error { return e.Err }

// UpstreamAPIError reports a failed provider API call. Rate limits, 5xx
// responses and timeouts are Retryable; authorization failures are not.
type UpstreamAPIError struct {
	Provider   Provider
	StatusCode int
	// Code is the provider-specific error code, when the response carried one.
	Code      string
	Retryable bool
	Err       error
}

func (e *UpstreamAPIError) Error() string {
	msg := fmt.Sprintf("%s api error", e.Provider)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" code %s", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamAPIError) Unwrap() error { return e.Err }

// NoCredentialError is returned when an operation needs a provider credential
// and none is active.
type NoCredentialError struct {
	Provider Provider
	Reason   string
}

func (e *NoCredentialError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("no active %s credential: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("no active %s credential", e.Provider)
}

// CacheOp distinguishes persistence reads from writes.
type CacheOp string

const (
	CacheOpRead  CacheOp = "read"
	CacheOpWrite CacheOp = "write"
)

// CacheError reports a persistence failure in the credential store or metrics cache.
type CacheError struct {
	Op  CacheOp
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// CacheReadError wraps err as a read-side CacheError.
func CacheReadError(err error) error {
	return &CacheError{Op: CacheOpRead, Err: err}
}

// CacheWriteError wraps err as a write-side CacheError.
func CacheWriteError(err error) error {
	return &CacheError{Op: CacheOpWrite, Err: err}
}

// IsRetryable reports whether err is (or wraps) a retryable UpstreamAPIError.
func IsRetryable(err error) bool {
	var apiErr *UpstreamAPIError
	return errors.As(err, &apiErr) && apiErr.Retryable
}
