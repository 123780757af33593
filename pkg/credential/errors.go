package credential

import (
	"errors"
	"fmt"
	"time"
)

// NotFoundError indicates the referenced credential does not exist in
// storage or cache.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("credential not found: %s", e.ID)
}

// KeyNotFoundError indicates a credential exists but the requested key is
// absent within it. Absence of a key is never silently tolerated.
type KeyNotFoundError struct {
	ID  string
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("credential %s: key %q not found", e.ID, e.Key)
}

// DecryptionFailureError indicates an encrypted-at-rest credential record
// could not be authenticated/decrypted — wrong key, corruption, or
// tampering. Never surfaces secret material.
type DecryptionFailureError struct {
	ID     string
	Reason string
}

func (e *DecryptionFailureError) Error() string {
	return fmt.Sprintf("credential %s: decryption failed: %s", e.ID, e.Reason)
}

// RefreshFailureError indicates a provider's refresh operation could not
// produce an updated credential.
type RefreshFailureError struct {
	ID     string
	Reason string
}

func (e *RefreshFailureError) Error() string {
	return fmt.Sprintf("credential %s: refresh failed: %s", e.ID, e.Reason)
}

// ReauthorizationRequiredError indicates the upstream identity provider
// requires a human to re-authorize; distinct from a transient refresh
// failure since retrying will not help without user action.
type ReauthorizationRequiredError struct {
	ID       string
	ReauthURL string
	Reason   string
}

func (e *ReauthorizationRequiredError) Error() string {
	return fmt.Sprintf("credential %s: reauthorization required: %s", e.ID, e.Reason)
}

// RateLimitedError indicates the upstream manager or token endpoint
// rejected the request with a rate-limit response; carries the retry-after
// hint when the upstream provided one.
type RateLimitedError struct {
	ID         string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("credential %s: rate limited, retry after %s", e.ID, e.RetryAfter)
}

// BackendUnavailableError indicates a storage backend or remote manager
// could not be reached (network failure, timeout).
type BackendUnavailableError struct {
	ID     string
	Reason string
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("credential %s: backend unavailable: %s", e.ID, e.Reason)
}

// ValidationFailureError indicates a programming error by the caller: a
// save against a read-only backend, a missing custom_header_name for
// HEADER_CUSTOM placement, invalid template syntax in a usage spec, and
// similar caller-side misuse.
type ValidationFailureError struct {
	Reason string
}

func (e *ValidationFailureError) Error() string {
	return fmt.Sprintf("validation failure: %s", e.Reason)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
