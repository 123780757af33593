// Package healthcheck makes one lightweight, read-only API call per
// provider to confirm a stored credential actually works, instead of
// waiting for a real tool invocation to discover it doesn't.
package healthcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Result reports whether a credential passed its health check.
type Result struct {
	Valid   bool
	Message string
	Details map[string]interface{}
}

// Checker makes one minimal API call to verify a credential value is
// accepted by its provider.
type Checker interface {
	Check(ctx context.Context, value string) Result
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, value string) Result

func (f CheckerFunc) Check(ctx context.Context, value string) Result { return f(ctx, value) }

const defaultTimeout = 10 * time.Second

var httpClient = &http.Client{Timeout: defaultTimeout}

// registry maps a credential's HealthCheckName to its Checker.
var registry = map[string]Checker{
	"hubspot":      CheckerFunc(checkHubSpot),
	"brave_search": CheckerFunc(checkBraveSearch),
	"slack":        CheckerFunc(checkSlack),
	"anthropic":    CheckerFunc(checkAnthropic),
	"github":       CheckerFunc(checkGitHub),
	"resend":       CheckerFunc(checkResend),
}

// Register adds or replaces the checker for a given health check name.
// Exists so callers can plug in checkers for providers this package does
// not know about.
func Register(name string, checker Checker) {
	registry[name] = checker
}

// Check runs the checker registered under name against value. A name with
// no registered checker is assumed valid: absence of a health check is not
// evidence of an invalid credential.
func Check(ctx context.Context, name string, value string) Result {
	checker, ok := registry[name]
	if !ok {
		return Result{
			Valid:   true,
			Message: fmt.Sprintf("no health checker for %q, assuming valid", name),
			Details: map[string]interface{}{"no_checker": true},
		}
	}
	return checker.Check(ctx, value)
}

func newRequest(ctx context.Context, method, url string, body map[string]interface{}) (*http.Request, error) {
	if body == nil {
		return http.NewRequestWithContext(ctx, method, url, nil)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func checkHubSpot(ctx context.Context, accessToken string) Result {
	req, err := newRequest(ctx, http.MethodGet, "https://api.hubapi.com/crm/v3/objects/contacts?limit=1", nil)
	if err != nil {
		return Result{Valid: false, Message: fmt.Sprintf("failed to build hubspot request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return timeoutOrConnectResult(err, "HubSpot")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Valid: true, Message: "HubSpot credentials valid"}
	case http.StatusUnauthorized:
		return Result{Valid: false, Message: "HubSpot token is invalid or expired", Details: statusDetails(resp.StatusCode)}
	case http.StatusForbidden:
		return Result{Valid: false, Message: "HubSpot token lacks required scopes", Details: map[string]interface{}{"status_code": resp.StatusCode, "required": "crm.objects.contacts.read"}}
	default:
		return Result{Valid: false, Message: fmt.Sprintf("HubSpot API returned status %d", resp.StatusCode), Details: statusDetails(resp.StatusCode)}
	}
}

func checkBraveSearch(ctx context.Context, apiKey string) Result {
	req, err := newRequest(ctx, http.MethodGet, "https://api.search.brave.com/res/v1/web/search?q=test&count=1", nil)
	if err != nil {
		return Result{Valid: false, Message: fmt.Sprintf("failed to build brave search request: %v", err)}
	}
	req.Header.Set("X-Subscription-Token", apiKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		return timeoutOrConnectResult(err, "Brave Search")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Valid: true, Message: "Brave Search API key valid"}
	case http.StatusUnauthorized:
		return Result{Valid: false, Message: "Brave Search API key is invalid", Details: statusDetails(resp.StatusCode)}
	case http.StatusTooManyRequests:
		// Rate limited but the key authenticated.
		return Result{Valid: true, Message: "Brave Search API key valid (rate limited)", Details: map[string]interface{}{"status_code": resp.StatusCode, "rate_limited": true}}
	default:
		return Result{Valid: false, Message: fmt.Sprintf("Brave Search API returned status %d", resp.StatusCode), Details: statusDetails(resp.StatusCode)}
	}
}

func checkSlack(ctx context.Context, botToken string) Result {
	req, err := newRequest(ctx, http.MethodPost, "https://slack.com/api/auth.test", nil)
	if err != nil {
		return Result{Valid: false, Message: fmt.Sprintf("failed to build slack request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+botToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return timeoutOrConnectResult(err, "Slack")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Valid: false, Message: fmt.Sprintf("Slack API returned HTTP %d", resp.StatusCode), Details: statusDetails(resp.StatusCode)}
	}

	var data struct {
		OK    bool   `json:"ok"`
		Team  string `json:"team"`
		User  string `json:"user"`
		BotID string `json:"bot_id"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Result{Valid: false, Message: fmt.Sprintf("Slack API returned malformed JSON: %v", err)}
	}
	if data.OK {
		return Result{Valid: true, Message: "Slack bot token valid", Details: map[string]interface{}{"team": data.Team, "user": data.User, "bot_id": data.BotID}}
	}
	if data.Error == "" {
		data.Error = "unknown_error"
	}
	return Result{Valid: false, Message: fmt.Sprintf("Slack token invalid: %s", data.Error), Details: map[string]interface{}{"error": data.Error}}
}

// checkAnthropic sends a deliberately empty-messages request: 401 means an
// invalid key, while 400/429 confirm the key authenticated without
// consuming any tokens.
func checkAnthropic(ctx context.Context, apiKey string) Result {
	req, err := newRequest(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", map[string]interface{}{
		"model":      "claude-sonnet-4-20250514",
		"max_tokens": 1,
		"messages":   []interface{}{},
	})
	if err != nil {
		return Result{Valid: false, Message: fmt.Sprintf("failed to build anthropic request: %v", err)}
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := httpClient.Do(req)
	if err != nil {
		return timeoutOrConnectResult(err, "Anthropic")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Valid: true, Message: "Anthropic API key valid"}
	case http.StatusUnauthorized:
		return Result{Valid: false, Message: "Anthropic API key is invalid", Details: statusDetails(resp.StatusCode)}
	case http.StatusTooManyRequests:
		return Result{Valid: true, Message: "Anthropic API key valid (rate limited)", Details: map[string]interface{}{"status_code": resp.StatusCode, "rate_limited": true}}
	case http.StatusBadRequest:
		return Result{Valid: true, Message: "Anthropic API key valid", Details: statusDetails(resp.StatusCode)}
	default:
		return Result{Valid: false, Message: fmt.Sprintf("Anthropic API returned status %d", resp.StatusCode), Details: statusDetails(resp.StatusCode)}
	}
}

func checkGitHub(ctx context.Context, accessToken string) Result {
	req, err := newRequest(ctx, http.MethodGet, "https://api.github.com/user", nil)
	if err != nil {
		return Result{Valid: false, Message: fmt.Sprintf("failed to build github request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := httpClient.Do(req)
	if err != nil {
		return timeoutOrConnectResult(err, "GitHub")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var data struct {
			Login string `json:"login"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return Result{Valid: true, Message: "GitHub token valid"}
		}
		username := data.Login
		if username == "" {
			username = "unknown"
		}
		return Result{Valid: true, Message: fmt.Sprintf("GitHub token valid (authenticated as %s)", username), Details: map[string]interface{}{"username": username}}
	case http.StatusUnauthorized:
		return Result{Valid: false, Message: "GitHub token is invalid or expired", Details: statusDetails(resp.StatusCode)}
	case http.StatusForbidden:
		return Result{Valid: false, Message: "GitHub token lacks required permissions", Details: statusDetails(resp.StatusCode)}
	default:
		return Result{Valid: false, Message: fmt.Sprintf("GitHub API returned status %d", resp.StatusCode), Details: statusDetails(resp.StatusCode)}
	}
}

func checkResend(ctx context.Context, apiKey string) Result {
	req, err := newRequest(ctx, http.MethodGet, "https://api.resend.com/domains", nil)
	if err != nil {
		return Result{Valid: false, Message: fmt.Sprintf("failed to build resend request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return timeoutOrConnectResult(err, "Resend")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Valid: true, Message: "Resend API key valid"}
	case http.StatusUnauthorized:
		return Result{Valid: false, Message: "Resend API key is invalid", Details: statusDetails(resp.StatusCode)}
	case http.StatusForbidden:
		return Result{Valid: false, Message: "Resend API key lacks required permissions", Details: statusDetails(resp.StatusCode)}
	default:
		return Result{Valid: false, Message: fmt.Sprintf("Resend API returned status %d", resp.StatusCode), Details: statusDetails(resp.StatusCode)}
	}
}

func statusDetails(code int) map[string]interface{} {
	return map[string]interface{}{"status_code": code}
}

func timeoutOrConnectResult(err error, provider string) Result {
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return Result{Valid: false, Message: fmt.Sprintf("%s API request timed out", provider), Details: map[string]interface{}{"error": "timeout"}}
	}
	return Result{Valid: false, Message: fmt.Sprintf("failed to connect to %s: %v", provider, err), Details: map[string]interface{}{"error": err.Error()}}
}
