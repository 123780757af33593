package clierr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yujiajie1988/hive/pkg/credential"
)

func TestExplainNotFound(t *testing.T) {
	err := Explain("svc", &credential.NotFoundError{ID: "svc"})
	var ue UserError
	assert.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Message, "svc")
	assert.Contains(t, ue.Suggestion, "save it first")
}

func TestExplainReauthorizationRequiredIncludesURL(t *testing.T) {
	err := Explain("github_oauth", &credential.ReauthorizationRequiredError{
		ID:        "github_oauth",
		ReauthURL: "https://github.com/login/oauth/authorize",
		Reason:    "refresh token revoked",
	})
	var ue UserError
	assert.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Suggestion, "https://github.com/login/oauth/authorize")
}

func TestExplainRateLimitedIncludesRetryAfter(t *testing.T) {
	err := Explain("svc", &credential.RateLimitedError{ID: "svc", RetryAfter: 30 * time.Second})
	var ue UserError
	assert.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Suggestion, "30s")
}

func TestExplainPassesThroughUnknownErrors(t *testing.T) {
	original := assert.AnError
	assert.Equal(t, original, Explain("svc", original))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&credential.RateLimitedError{ID: "svc"}))
	assert.True(t, IsRetryable(&credential.BackendUnavailableError{ID: "svc"}))
	assert.False(t, IsRetryable(&credential.NotFoundError{ID: "svc"}))
	assert.False(t, IsRetryable(nil))
}
