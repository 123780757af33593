package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yujiajie1988/hive/pkg/credential"
)

// RemoteSyncConfig configures a RemoteSync provider against an
// HTTPS-reachable external secret manager (the "Aden server" of spec.md
// §4.5).
type RemoteSyncConfig struct {
	ProviderID string
	BaseURL    string
	AgentKey   string
	// Namespace, if set, is sent as the X-Aden-Tenant-Id header for
	// multi-tenant deployments.
	Namespace      string
	RequestTimeout time.Duration
	// MaxAttempts bounds the retry policy for transient network failures;
	// default 3 with exponential backoff starting at 200ms.
	MaxAttempts int
	HTTPClient  *http.Client
}

// RemoteSync delegates Refresh to an external secret manager over HTTPS,
// per spec.md §4.5. On BackendUnavailable it degrades gracefully: if the
// credential it was asked to refresh has not yet expired, it returns the
// credential unchanged instead of propagating the failure.
type RemoteSync struct {
	cfg        RemoteSyncConfig
	httpClient *http.Client
}

// NewRemoteSync constructs a RemoteSync provider. AgentKey falls back to
// no value here (spec.md's ADEN_API_KEY environment sourcing is a
// constructor-level concern left to callers; unlike storage.VaultBackend,
// which reads VAULT_TOKEN itself, no environment variable is read).
func NewRemoteSync(cfg RemoteSyncConfig) (*RemoteSync, error) {
	if cfg.ProviderID == "" {
		return nil, &credential.ValidationFailureError{Reason: "remotesync provider: ProviderID is required"}
	}
	if cfg.BaseURL == "" {
		return nil, &credential.ValidationFailureError{Reason: "remotesync provider: BaseURL is required"}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &RemoteSync{cfg: cfg, httpClient: httpClient}, nil
}

func (r *RemoteSync) ID() string { return r.cfg.ProviderID }

func (r *RemoteSync) SupportedKinds() []credential.Kind {
	return []credential.Kind{credential.KindOAuth2, credential.KindAPIKey, credential.KindBearerToken, credential.KindCustom}
}

// remoteCredential is the wire shape returned by the manager for a single
// credential: access token, expiry, scopes, metadata.
type remoteCredential struct {
	ID           string            `json:"id"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	Scopes       []string          `json:"scopes,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type remoteErrorBody struct {
	Error                   string `json:"error"`
	RequiresReauthorization bool   `json:"requires_reauthorization"`
	ReauthURL               string `json:"reauth_url"`
	RetryAfterSeconds       int    `json:"retry_after_seconds"`
}

// Refresh POSTs /credentials/<id>/refresh, forcing the manager to refresh
// internally, and applies the resulting access token/expiry/refresh token
// to c. Network failures are absorbed (cached credential returned instead)
// when c has not yet expired; once expired, failures propagate.
func (r *RemoteSync) Refresh(ctx context.Context, c *credential.Object) (*credential.Object, error) {
	body, status, err := r.doWithRetry(ctx, http.MethodPost, "/credentials/"+c.ID+"/refresh", nil)
	if err != nil {
		if c.NeedsRefresh(time.Now().UTC()) {
			return nil, &credential.BackendUnavailableError{ID: c.ID, Reason: err.Error()}
		}
		return c, nil
	}

	if apiErr := classifyStatus(c.ID, status, body); apiErr != nil {
		return nil, apiErr
	}

	var rc remoteCredential
	if err := json.Unmarshal(body, &rc); err != nil {
		return nil, &credential.RefreshFailureError{ID: c.ID, Reason: "malformed refresh response: " + err.Error()}
	}

	c.SetKey(credential.Key{Name: "access_token", Value: credential.NewSecret(rc.AccessToken), ExpiresAt: rc.ExpiresAt})
	if rc.RefreshToken != "" {
		c.SetKey(credential.Key{Name: "refresh_token", Value: credential.NewSecret(rc.RefreshToken)})
	}
	c.LastRefreshedAt = time.Now().UTC()
	return c, nil
}

// Validate calls GET /credentials/<id>/validate, which returns a
// structured validity check (token_expired, refresh_token_revoked, ...).
func (r *RemoteSync) Validate(ctx context.Context, c *credential.Object) (bool, error) {
	body, status, err := r.doWithRetry(ctx, http.MethodGet, "/credentials/"+c.ID+"/validate", nil)
	if err != nil {
		return false, &credential.BackendUnavailableError{ID: c.ID, Reason: err.Error()}
	}
	if apiErr := classifyStatus(c.ID, status, body); apiErr != nil {
		return false, apiErr
	}
	var result struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return false, &credential.ValidationFailureError{Reason: "malformed validate response: " + err.Error()}
	}
	return result.Valid, nil
}

// ShouldRefresh applies the shared expiration-buffer default.
func (r *RemoteSync) ShouldRefresh(c *credential.Object, now time.Time) bool {
	return anyKeyExpiresWithin(c, now, DefaultRefreshBuffer)
}

// Revoke has no remote-manager endpoint in spec.md §4.5's contract; it is
// a no-op.
func (r *RemoteSync) Revoke(context.Context, *credential.Object) (bool, error) { return false, nil }

// FetchCredential performs GET /credentials/<id>, returning the manager's
// current view of the credential. The Store does not call it; its cache
// misses load from the storage backend.
func (r *RemoteSync) FetchCredential(ctx context.Context, id string) (*credential.Object, error) {
	body, status, err := r.doWithRetry(ctx, http.MethodGet, "/credentials/"+id, nil)
	if err != nil {
		return nil, &credential.BackendUnavailableError{ID: id, Reason: err.Error()}
	}
	if status == http.StatusNotFound {
		return nil, &credential.NotFoundError{ID: id}
	}
	if apiErr := classifyStatus(id, status, body); apiErr != nil {
		return nil, apiErr
	}

	var rc remoteCredential
	if err := json.Unmarshal(body, &rc); err != nil {
		return nil, &credential.ValidationFailureError{Reason: "malformed credential response: " + err.Error()}
	}

	obj := credential.NewObject(id, credential.KindOAuth2)
	obj.ProviderID = r.cfg.ProviderID
	obj.SetKey(credential.Key{Name: "access_token", Value: credential.NewSecret(rc.AccessToken), ExpiresAt: rc.ExpiresAt})
	if rc.RefreshToken != "" {
		obj.SetKey(credential.Key{Name: "refresh_token", Value: credential.NewSecret(rc.RefreshToken)})
	}
	return obj, nil
}

// ListCredentials performs GET /credentials.
func (r *RemoteSync) ListCredentials(ctx context.Context) ([]string, error) {
	body, status, err := r.doWithRetry(ctx, http.MethodGet, "/credentials", nil)
	if err != nil {
		return nil, &credential.BackendUnavailableError{Reason: err.Error()}
	}
	if apiErr := classifyStatus("", status, body); apiErr != nil {
		return nil, apiErr
	}
	var ids []string
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, &credential.ValidationFailureError{Reason: "malformed list response: " + err.Error()}
	}
	return ids, nil
}

func classifyStatus(id string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		var eb remoteErrorBody
		_ = json.Unmarshal(body, &eb)
		return &credential.RateLimitedError{ID: id, RetryAfter: time.Duration(eb.RetryAfterSeconds) * time.Second}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		var eb remoteErrorBody
		_ = json.Unmarshal(body, &eb)
		if eb.RequiresReauthorization {
			return &credential.ReauthorizationRequiredError{ID: id, ReauthURL: eb.ReauthURL, Reason: eb.Error}
		}
		return &credential.ValidationFailureError{Reason: fmt.Sprintf("remote manager rejected credentials for %s: %s", id, eb.Error)}
	default:
		var eb remoteErrorBody
		_ = json.Unmarshal(body, &eb)
		if eb.RequiresReauthorization {
			return &credential.ReauthorizationRequiredError{ID: id, ReauthURL: eb.ReauthURL, Reason: eb.Error}
		}
		return &credential.RefreshFailureError{ID: id, Reason: fmt.Sprintf("remote manager status %d: %s", status, eb.Error)}
	}
}

// doWithRetry issues one HTTP call with a bounded number of attempts and
// exponential backoff, retrying only on transient network failures (not
// on any received HTTP status, which the caller classifies itself).
func (r *RemoteSync) doWithRetry(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		body, status, err := r.do(ctx, method, path, payload)
		if err == nil {
			return body, status, nil
		}
		lastErr = err
	}
	return nil, 0, lastErr
}

func (r *RemoteSync) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.AgentKey)
	if r.cfg.Namespace != "" {
		req.Header.Set("X-Aden-Tenant-Id", r.cfg.Namespace)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

var _ Provider = (*RemoteSync)(nil)
