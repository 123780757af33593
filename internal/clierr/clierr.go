// Package clierr turns the closed credential error taxonomy into
// user-facing messages with actionable suggestions, the way a CLI should
// report failures instead of printing a bare Go error string.
package clierr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yujiajie1988/hive/pkg/credential"
)

// UserError is an error carrying a suggestion for what the operator should
// do next.
type UserError struct {
	Message    string
	Suggestion string
	Err        error
}

func (e UserError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Suggestion != "" {
		b.WriteString("\n  try: ")
		b.WriteString(e.Suggestion)
	}
	return b.String()
}

func (e UserError) Unwrap() error { return e.Err }

// Explain maps a credential package error into a UserError with a concrete
// next step. Errors outside the closed taxonomy pass through unchanged.
func Explain(id string, err error) error {
	if err == nil {
		return nil
	}

	var notFound *credential.NotFoundError
	if errors.As(err, &notFound) {
		return UserError{
			Message:    fmt.Sprintf("credential %q is not known to any configured backend", notFound.ID),
			Suggestion: "check the credential id, or save it first",
			Err:        err,
		}
	}

	var keyNotFound *credential.KeyNotFoundError
	if errors.As(err, &keyNotFound) {
		return UserError{
			Message:    fmt.Sprintf("credential %q has no key %q", keyNotFound.ID, keyNotFound.Key),
			Suggestion: "list the credential's keys, or update the usage template's key reference",
			Err:        err,
		}
	}

	var decrypt *credential.DecryptionFailureError
	if errors.As(err, &decrypt) {
		return UserError{
			Message:    fmt.Sprintf("credential %q could not be decrypted", decrypt.ID),
			Suggestion: "verify HIVE_CREDENTIAL_KEY matches the key the store was written with",
			Err:        err,
		}
	}

	var refresh *credential.RefreshFailureError
	if errors.As(err, &refresh) {
		return UserError{
			Message:    fmt.Sprintf("refreshing credential %q failed", refresh.ID),
			Suggestion: "retry, or check the provider's upstream status",
			Err:        err,
		}
	}

	var reauth *credential.ReauthorizationRequiredError
	if errors.As(err, &reauth) {
		msg := fmt.Sprintf("credential %q requires reauthorization", reauth.ID)
		suggestion := "reauthorize the credential with its provider"
		if reauth.ReauthURL != "" {
			suggestion = fmt.Sprintf("reauthorize at %s", reauth.ReauthURL)
		}
		return UserError{Message: msg, Suggestion: suggestion, Err: err}
	}

	var rateLimited *credential.RateLimitedError
	if errors.As(err, &rateLimited) {
		suggestion := "wait and retry"
		if rateLimited.RetryAfter > 0 {
			suggestion = fmt.Sprintf("wait %s and retry", rateLimited.RetryAfter)
		}
		return UserError{
			Message:    fmt.Sprintf("provider for credential %q is rate limiting requests", rateLimited.ID),
			Suggestion: suggestion,
			Err:        err,
		}
	}

	var unavailable *credential.BackendUnavailableError
	if errors.As(err, &unavailable) {
		return UserError{
			Message:    fmt.Sprintf("backend is unavailable for credential %q: %s", unavailable.ID, unavailable.Reason),
			Suggestion: "check backend connectivity and credentials, then retry",
			Err:        err,
		}
	}

	var validation *credential.ValidationFailureError
	if errors.As(err, &validation) {
		return UserError{
			Message: fmt.Sprintf("%s: %s", id, validation.Reason),
			Err:     err,
		}
	}

	return err
}

// IsRetryable reports whether err represents a transient condition worth
// retrying without operator intervention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rateLimited *credential.RateLimitedError
	if errors.As(err, &rateLimited) {
		return true
	}
	var unavailable *credential.BackendUnavailableError
	if errors.As(err, &unavailable) {
		return true
	}
	return false
}
