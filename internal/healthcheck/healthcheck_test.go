package healthcheck

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport lets tests stub http.Client responses without touching the
// real network: every request, whatever its URL, gets the same status code
// and body. The checkers' endpoints are fixed inside each checker rather
// than injectable, so the shared client's transport is swapped instead.
type fakeTransport struct {
	statusCode int
	body       string
}

func (f fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: f.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(f.body)),
		Header:     make(http.Header),
	}, nil
}

func withFakeTransport(t *testing.T, statusCode int, body string) {
	t.Helper()
	original := httpClient.Transport
	httpClient.Transport = fakeTransport{statusCode: statusCode, body: body}
	t.Cleanup(func() { httpClient.Transport = original })
}

func TestCheckUnregisteredNameAssumesValid(t *testing.T) {
	result := Check(context.Background(), "not_a_real_provider", "value")
	assert.True(t, result.Valid)
	assert.Equal(t, true, result.Details["no_checker"])
}

func TestRegisterAndCheckCustomChecker(t *testing.T) {
	Register("test_provider", CheckerFunc(func(ctx context.Context, value string) Result {
		if value == "good" {
			return Result{Valid: true, Message: "ok"}
		}
		return Result{Valid: false, Message: "bad token"}
	}))

	good := Check(context.Background(), "test_provider", "good")
	assert.True(t, good.Valid)

	bad := Check(context.Background(), "test_provider", "wrong")
	assert.False(t, bad.Valid)
	assert.Equal(t, "bad token", bad.Message)
}

func TestGitHubHealthCheckerValidToken(t *testing.T) {
	withFakeTransport(t, http.StatusOK, `{"login":"octocat"}`)

	result := checkGitHub(context.Background(), "token")
	require.True(t, result.Valid)
	assert.Contains(t, result.Message, "octocat")
}

func TestGitHubHealthCheckerInvalidToken(t *testing.T) {
	withFakeTransport(t, http.StatusUnauthorized, `{}`)

	result := checkGitHub(context.Background(), "bad-token")
	assert.False(t, result.Valid)
	assert.Equal(t, "GitHub token is invalid or expired", result.Message)
}

func TestAnthropicHealthCheckerBadRequestStillValid(t *testing.T) {
	withFakeTransport(t, http.StatusBadRequest, `{}`)

	result := checkAnthropic(context.Background(), "sk-ant-x")
	assert.True(t, result.Valid)
}

func TestSlackHealthCheckerParsesOKField(t *testing.T) {
	withFakeTransport(t, http.StatusOK, `{"ok":true,"team":"acme","user":"bot","bot_id":"B1"}`)

	result := checkSlack(context.Background(), "xoxb-x")
	require.True(t, result.Valid)
	assert.Equal(t, "acme", result.Details["team"])
}

func TestSlackHealthCheckerReportsAPIError(t *testing.T) {
	withFakeTransport(t, http.StatusOK, `{"ok":false,"error":"invalid_auth"}`)

	result := checkSlack(context.Background(), "xoxb-bad")
	assert.False(t, result.Valid)
	assert.True(t, strings.Contains(result.Message, "invalid_auth"))
}

func TestBraveSearchRateLimitedStillValid(t *testing.T) {
	withFakeTransport(t, http.StatusTooManyRequests, `{}`)

	result := checkBraveSearch(context.Background(), "key")
	assert.True(t, result.Valid)
	assert.Equal(t, true, result.Details["rate_limited"])
}
