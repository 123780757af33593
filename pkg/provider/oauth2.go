package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/yujiajie1988/hive/internal/healthcheck"
	"github.com/yujiajie1988/hive/pkg/credential"
)

// TokenPlacement selects where an OAuth2Provider places a resolved token
// in an outbound request, per spec.md §4.4.
type TokenPlacement string

const (
	PlacementHeaderBearer TokenPlacement = "HEADER_BEARER"
	PlacementHeaderCustom TokenPlacement = "HEADER_CUSTOM"
	PlacementQueryParam   TokenPlacement = "QUERY_PARAM"
)

// OAuth2Config is the closed set of options configuring an OAuth2Provider.
type OAuth2Config struct {
	ProviderID     string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	DefaultScopes  []string
	Placement      TokenPlacement
	// CustomHeaderName is required when Placement is PlacementHeaderCustom.
	CustomHeaderName string
	RequestTimeout   time.Duration
	// ExtraTokenParams are additional form fields sent with every
	// grant/refresh call.
	ExtraTokenParams map[string]string
	// HTTPClient overrides the transport used for token-endpoint calls;
	// callers may substitute this in tests. If nil, a client scoped to
	// RequestTimeout is constructed.
	HTTPClient *http.Client
	// HealthCheckName, if set, names a checker registered with
	// internal/healthcheck. Validate consults it as an extra signal beyond
	// "present and not expired": a token that looks well-formed but has
	// been revoked server-side still fails Validate. Leave unset to skip
	// the live call and validate on expiry alone.
	HealthCheckName string
}

// OAuth2Token is the structured result of a grant or refresh call,
// assembled from the token endpoint's RFC 6749 JSON response.
type OAuth2Token struct {
	AccessToken  string
	TokenType    string
	ExpiresAt    time.Time
	RefreshToken string
	Scope        string
	Raw          map[string]interface{}
}

// OAuth2Provider implements Provider for OAUTH2 and BEARER_TOKEN kinds. It
// speaks the token-endpoint protocol via golang.org/x/oauth2, assembling
// the RFC 6749 wire mechanics (form encoding, token parsing, expiry) into
// the credential-shaped result the Store persists.
type OAuth2Provider struct {
	cfg        OAuth2Config
	httpClient *http.Client
}

// NewOAuth2Provider validates cfg and constructs a provider. Each instance
// owns its own *http.Client (never process-wide state), per spec.md §9's
// resolution of that Open Question.
func NewOAuth2Provider(cfg OAuth2Config) (*OAuth2Provider, error) {
	if cfg.ProviderID == "" {
		return nil, &credential.ValidationFailureError{Reason: "oauth2 provider: ProviderID is required"}
	}
	if cfg.TokenURL == "" {
		return nil, &credential.ValidationFailureError{Reason: "oauth2 provider: TokenURL is required"}
	}
	if cfg.Placement == PlacementHeaderCustom && cfg.CustomHeaderName == "" {
		return nil, &credential.ValidationFailureError{Reason: "oauth2 provider: custom_header_name is required for HEADER_CUSTOM placement"}
	}
	if cfg.Placement == "" {
		cfg.Placement = PlacementHeaderBearer
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &OAuth2Provider{cfg: cfg, httpClient: httpClient}, nil
}

func (p *OAuth2Provider) ID() string { return p.cfg.ProviderID }

func (p *OAuth2Provider) SupportedKinds() []credential.Kind {
	return []credential.Kind{credential.KindOAuth2, credential.KindBearerToken}
}

// ctxWithClient attaches httpClient so golang.org/x/oauth2's internal HTTP
// calls route through it instead of http.DefaultClient.
func (p *OAuth2Provider) ctxWithClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// AcquireViaClientCredentials performs a cold client-credentials grant and
// returns the resulting token; it does not touch the Store — callers
// (typically LifecycleManager) persist the result.
func (p *OAuth2Provider) AcquireViaClientCredentials(ctx context.Context, scopes []string) (*OAuth2Token, error) {
	if len(scopes) == 0 {
		scopes = p.cfg.DefaultScopes
	}
	ccCfg := &clientcredentials.Config{
		ClientID:       p.cfg.ClientID,
		ClientSecret:   p.cfg.ClientSecret,
		TokenURL:       p.cfg.TokenURL,
		Scopes:         scopes,
		EndpointParams: extraParamsToValues(p.cfg.ExtraTokenParams),
	}

	tok, err := ccCfg.Token(p.ctxWithClient(ctx))
	if err != nil {
		return nil, &credential.RefreshFailureError{Reason: fmt.Sprintf("client_credentials grant: %v", err)}
	}
	return p.fromOAuth2Token(tok), nil
}

// Refresh reads the refresh_token key and invokes the refresh-token grant,
// per spec.md §4.4's refresh semantics. Fails with
// *credential.RefreshFailureError with a descriptive reason if the
// refresh_token key is absent.
func (p *OAuth2Provider) Refresh(ctx context.Context, c *credential.Object) (*credential.Object, error) {
	refreshKey, ok := c.Key("refresh_token")
	if !ok {
		return nil, &credential.RefreshFailureError{ID: c.ID, Reason: "credential has no refresh_token key"}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: p.cfg.TokenURL},
		Scopes:       p.cfg.DefaultScopes,
	}
	src := oauthCfg.TokenSource(p.ctxWithClient(ctx), &oauth2.Token{RefreshToken: refreshKey.Value.Reveal()})

	tok, err := src.Token()
	if err != nil {
		return nil, &credential.RefreshFailureError{ID: c.ID, Reason: fmt.Sprintf("refresh_token grant: %v", err)}
	}

	result := p.fromOAuth2Token(tok)
	c.SetKey(credential.Key{Name: "access_token", Value: credential.NewSecret(result.AccessToken), ExpiresAt: expiresAtPtr(result.ExpiresAt)})
	// The refresh token is rotated only when the response carries a new
	// one; x/oauth2's TokenSource preserves the old RefreshToken field
	// when the response omits it, so this check still reflects "did the
	// endpoint actually rotate it".
	if tok.RefreshToken != "" && tok.RefreshToken != refreshKey.Value.Reveal() {
		c.SetKey(credential.Key{Name: "refresh_token", Value: credential.NewSecret(tok.RefreshToken)})
	}
	c.LastRefreshedAt = time.Now().UTC()
	return c, nil
}

// Validate reports whether the access token is present and not expired.
// When cfg.HealthCheckName is set, a well-formed unexpired token is also
// run through that healthcheck.Checker as an extra signal — a token a
// provider has revoked server-side still fails Validate even though
// nothing in the stored credential itself looks wrong.
func (p *OAuth2Provider) Validate(ctx context.Context, c *credential.Object) (bool, error) {
	k, ok := c.Key("access_token")
	if !ok {
		return false, nil
	}
	if k.Expired(time.Now().UTC()) {
		return false, nil
	}
	if p.cfg.HealthCheckName == "" {
		return true, nil
	}
	result := healthcheck.Check(ctx, p.cfg.HealthCheckName, k.Value.Reveal())
	return result.Valid, nil
}

// ShouldRefresh is true iff any key expires within DefaultRefreshBuffer of
// now, per spec.md §4.4's expiration-buffer rule (shared with
// Provider.ShouldRefresh's general default).
func (p *OAuth2Provider) ShouldRefresh(c *credential.Object, now time.Time) bool {
	return anyKeyExpiresWithin(c, now, DefaultRefreshBuffer)
}

// Revoke is not part of the RFC 6749 core and has no standard endpoint
// configured here; it is a no-op, matching Static's default.
func (p *OAuth2Provider) Revoke(context.Context, *credential.Object) (bool, error) { return false, nil }

// FormatRequest produces a structured placement of tok per p.cfg.Placement:
// a header map for HEADER_BEARER/HEADER_CUSTOM, or a query-parameter map
// for QUERY_PARAM. This is the imperative on-demand counterpart to the
// template resolver's declarative usage specs — both exist because
// templates are fixed at tool-registration time while this is computed
// per outbound request.
func (p *OAuth2Provider) FormatRequest(tok *OAuth2Token) (headers map[string]string, query map[string]string, err error) {
	switch p.cfg.Placement {
	case PlacementHeaderBearer:
		tokenType := tok.TokenType
		if tokenType == "" {
			tokenType = "Bearer"
		}
		return map[string]string{"Authorization": tokenType + " " + tok.AccessToken}, nil, nil
	case PlacementHeaderCustom:
		return map[string]string{p.cfg.CustomHeaderName: tok.AccessToken}, nil, nil
	case PlacementQueryParam:
		return nil, map[string]string{"access_token": tok.AccessToken}, nil
	default:
		return nil, nil, &credential.ValidationFailureError{Reason: fmt.Sprintf("oauth2 provider: unknown token placement %q", p.cfg.Placement)}
	}
}

func (p *OAuth2Provider) fromOAuth2Token(tok *oauth2.Token) *OAuth2Token {
	expiry := tok.Expiry
	if expiry.IsZero() {
		if claimed, ok := jwtExpiry(tok.AccessToken); ok {
			expiry = claimed
		}
	}

	raw := map[string]interface{}{}
	if extra, ok := tok.Extra("scope").(string); ok {
		raw["scope"] = extra
	}

	return &OAuth2Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    expiry,
		RefreshToken: tok.RefreshToken,
		Scope:        scopeFromToken(tok),
		Raw:          raw,
	}
}

func scopeFromToken(tok *oauth2.Token) string {
	if s, ok := tok.Extra("scope").(string); ok {
		return s
	}
	return ""
}

// jwtExpiry decodes the `exp` claim from access tokens shaped as a JWT,
// for token endpoints whose response omits expires_in. No signature
// verification is performed: the token was just returned by the token
// endpoint itself over TLS, so it is already trusted.
func jwtExpiry(accessToken string) (time.Time, bool) {
	if strings.Count(accessToken, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func expiresAtPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	tt := t
	return &tt
}

func extraParamsToValues(params map[string]string) map[string][]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string][]string, len(params))
	for k, v := range params {
		out[k] = []string{v}
	}
	return out
}

var _ Provider = (*OAuth2Provider)(nil)

// CredentialGetter is the narrow read/save surface LifecycleManager needs
// from the Store, avoiding an import cycle between pkg/provider and
// internal/store.
type CredentialGetter interface {
	GetCredential(ctx context.Context, id string, refreshIfNeeded bool) (*credential.Object, error)
	SaveCredential(ctx context.Context, c *credential.Object) error
}

// LifecycleManager is a thin wrapper around one (provider, credential id,
// store) triple, offering the two operations spec.md §4.4 names:
// GetValidToken and AcquireViaClientCredentials.
type LifecycleManager struct {
	provider     *OAuth2Provider
	credentialID string
	store        CredentialGetter
}

// NewLifecycleManager builds a manager bound to one credential id.
func NewLifecycleManager(p *OAuth2Provider, credentialID string, store CredentialGetter) *LifecycleManager {
	return &LifecycleManager{provider: p, credentialID: credentialID, store: store}
}

// GetValidToken reads the credential, refreshing through the provider if
// the access token is within the refresh buffer, and returns the fresh
// token. Failure to refresh when the token is already expired is fatal;
// failure to refresh when the token is still valid is absorbed — the
// cached token is returned instead, per spec.md §4.4.
func (m *LifecycleManager) GetValidToken(ctx context.Context) (*OAuth2Token, error) {
	c, err := m.store.GetCredential(ctx, m.credentialID, true)
	if err != nil {
		return nil, err
	}

	k, ok := c.Key("access_token")
	if !ok {
		return nil, &credential.KeyNotFoundError{ID: m.credentialID, Key: "access_token"}
	}

	now := time.Now().UTC()
	if m.provider.ShouldRefresh(c, now) {
		refreshed, refreshErr := m.provider.Refresh(ctx, c)
		if refreshErr != nil {
			if k.Expired(now) {
				return nil, refreshErr
			}
			// Not yet expired: absorb the failure and serve the cached
			// token, per spec.md §4.4/§7.
			return tokenFromCredential(c, k), nil
		}
		if saveErr := m.store.SaveCredential(ctx, refreshed); saveErr != nil {
			return nil, saveErr
		}
		freshKey, _ := refreshed.Key("access_token")
		return tokenFromCredential(refreshed, freshKey), nil
	}

	return tokenFromCredential(c, k), nil
}

// AcquireViaClientCredentials performs a cold client-credentials grant and
// persists the result as a new OAUTH2 credential under the manager's
// credential id.
func (m *LifecycleManager) AcquireViaClientCredentials(ctx context.Context, scopes []string) (*OAuth2Token, error) {
	tok, err := m.provider.AcquireViaClientCredentials(ctx, scopes)
	if err != nil {
		return nil, err
	}

	c := credential.NewObject(m.credentialID, credential.KindOAuth2)
	c.ProviderID = m.provider.ID()
	c.AutoRefresh = true
	c.SetKey(credential.Key{Name: "access_token", Value: credential.NewSecret(tok.AccessToken), ExpiresAt: expiresAtPtr(tok.ExpiresAt)})
	if tok.RefreshToken != "" {
		c.SetKey(credential.Key{Name: "refresh_token", Value: credential.NewSecret(tok.RefreshToken)})
	}
	c.LastRefreshedAt = time.Now().UTC()

	if err := m.store.SaveCredential(ctx, c); err != nil {
		return nil, err
	}
	return tok, nil
}

func tokenFromCredential(c *credential.Object, accessKey credential.Key) *OAuth2Token {
	tok := &OAuth2Token{AccessToken: accessKey.Value.Reveal(), TokenType: "Bearer"}
	if accessKey.ExpiresAt != nil {
		tok.ExpiresAt = *accessKey.ExpiresAt
	}
	if rt, ok := c.Key("refresh_token"); ok {
		tok.RefreshToken = rt.Value.Reveal()
	}
	return tok
}
