// Package provider defines the lifecycle authority for credentials:
// refresh, validate, revoke, and the should-refresh policy decision that
// drives the Store's automatic-refresh path. Providers are registered
// with the Store by provider_id and bound to a CredentialObject through
// its ProviderID field.
//
// The package ships one concrete provider directly (Static, for API_KEY
// and CUSTOM kinds that never refresh); OAuth2Provider and the
// remote-sync provider live in oauth2.go and remotesync.go alongside it.
package provider

import (
	"context"
	"time"

	"github.com/yujiajie1988/hive/pkg/credential"
)

// DefaultRefreshBuffer is the duration before absolute expiration within
// which a credential is considered due for refresh, per spec.md's 5-minute
// default.
const DefaultRefreshBuffer = 5 * time.Minute

// Provider is the lifecycle authority for one or more credential kinds.
// Implementations must be safe for concurrent use: the Store may invoke
// Refresh, Validate, and ShouldRefresh from multiple goroutines, though it
// guarantees at most one concurrent Refresh per credential id.
type Provider interface {
	// ID returns the provider's stable identifier, matched against
	// CredentialObject.ProviderID by the Store's registry.
	ID() string

	// SupportedKinds lists the credential.Kind values this provider
	// knows how to handle. The Store does not enforce this list; it is
	// advisory for callers registering providers.
	SupportedKinds() []credential.Kind

	// Refresh returns an updated credential reflecting whatever lifecycle
	// action applies, mutating and returning the same object identity.
	// Fails with *credential.RefreshFailureError if refresh is impossible.
	// Must advance LastRefreshedAt on success.
	Refresh(ctx context.Context, c *credential.Object) (*credential.Object, error)

	// Validate is a side-effect-free check that the credential is still
	// usable.
	Validate(ctx context.Context, c *credential.Object) (bool, error)

	// ShouldRefresh is the policy decision driving automatic refresh.
	ShouldRefresh(c *credential.Object, now time.Time) bool

	// Revoke optionally invalidates the credential upstream. The default
	// Static provider's Revoke is a no-op returning false; providers for
	// which revocation is meaningless should do the same.
	Revoke(ctx context.Context, c *credential.Object) (bool, error)
}

// anyKeyExpiresWithin reports whether any key in c has an expiration
// within buffer of now — the shared policy primitive behind ShouldRefresh
// for every provider that has real expirations.
func anyKeyExpiresWithin(c *credential.Object, now time.Time, buffer time.Duration) bool {
	deadline := now.Add(buffer)
	for _, k := range c.Keys() {
		if k.ExpiresAt != nil && !k.ExpiresAt.After(deadline) {
			return true
		}
	}
	return false
}

// Static is the lifecycle authority for credentials that never change:
// API_KEY and CUSTOM kinds. It always returns the credential unchanged,
// validates true iff the credential has at least one key, and never
// requests refresh. Grounded on the teacher's LiteralProvider: a provider
// whose entire contract is "the value already is the value".
type Static struct {
	id string
}

// NewStatic constructs a Static provider under the given provider id.
// Pass "" to use the conventional "static" id.
func NewStatic(id string) *Static {
	if id == "" {
		id = "static"
	}
	return &Static{id: id}
}

func (s *Static) ID() string { return s.id }

func (s *Static) SupportedKinds() []credential.Kind {
	return []credential.Kind{credential.KindAPIKey, credential.KindCustom}
}

// Refresh returns c unchanged; static credentials have nothing to refresh.
func (s *Static) Refresh(_ context.Context, c *credential.Object) (*credential.Object, error) {
	c.LastRefreshedAt = time.Now().UTC()
	return c, nil
}

// Validate reports true iff the credential carries at least one key.
func (s *Static) Validate(_ context.Context, c *credential.Object) (bool, error) {
	return len(c.Keys()) > 0, nil
}

// ShouldRefresh is always false: static credentials do not expire.
func (s *Static) ShouldRefresh(*credential.Object, time.Time) bool { return false }

// Revoke is a no-op: static credentials have no upstream revocation path.
func (s *Static) Revoke(context.Context, *credential.Object) (bool, error) { return false, nil }

var _ Provider = (*Static)(nil)
