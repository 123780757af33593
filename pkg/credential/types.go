// Package credential defines the data model for the credential store: the
// secret-bearing types (CredentialKey, CredentialObject), the tool-side
// usage declaration (CredentialUsageSpec), and the error taxonomy every
// storage backend and provider reports through.
package credential

import (
	"sort"
	"time"
)

// Kind is the closed set of credential kinds the store understands.
type Kind string

const (
	KindAPIKey      Kind = "API_KEY"
	KindOAuth2      Kind = "OAUTH2"
	KindBasicAuth   Kind = "BASIC_AUTH"
	KindBearerToken Kind = "BEARER_TOKEN"
	KindCustom      Kind = "CUSTOM"
)

// Key is a single named secret slot within a credential. The value is
// wrapped in Secret so it can never leak through logging or debug output;
// it is revealed only via Secret.Reveal.
type Key struct {
	Name      string
	Value     Secret
	ExpiresAt *time.Time
	Metadata  map[string]string
}

// Expired reports whether this key has an expiration and the current time
// is at or past it.
func (k Key) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// Object is a named bundle of Keys representing access to one upstream
// service (one CredentialObject in spec terms).
type Object struct {
	ID              string
	Kind            Kind
	ProviderID      string // optional; empty implies the static provider
	LastRefreshedAt time.Time
	AutoRefresh     bool
	LastUsedAt      time.Time
	UseCount        int64
	Description     string
	Tags            []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	// HealthCheckName optionally names a healthcheck.Checker for this
	// credential; the hive CLI's health command runs it. Provider.Validate
	// implementations do not read this field (OAuth2Provider uses its own
	// OAuth2Config.HealthCheckName).
	HealthCheckName string

	keys     map[string]*Key
	keyOrder []string // insertion order, for default-key selection
}

// NewObject constructs an empty credential bundle.
func NewObject(id string, kind Kind) *Object {
	now := time.Now().UTC()
	return &Object{
		ID:        id,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
		keys:      make(map[string]*Key),
	}
}

// SetKey inserts or replaces a key. UpdatedAt advances on every mutation.
func (o *Object) SetKey(k Key) {
	if o.keys == nil {
		o.keys = make(map[string]*Key)
	}
	if _, exists := o.keys[k.Name]; !exists {
		o.keyOrder = append(o.keyOrder, k.Name)
	}
	kk := k
	o.keys[k.Name] = &kk
	o.UpdatedAt = time.Now().UTC()
}

// Key returns the named key and whether it is present.
func (o *Object) Key(name string) (Key, bool) {
	k, ok := o.keys[name]
	if !ok {
		return Key{}, false
	}
	return *k, true
}

// Keys returns all keys in insertion order.
func (o *Object) Keys() []Key {
	out := make([]Key, 0, len(o.keyOrder))
	for _, name := range o.keyOrder {
		if k, ok := o.keys[name]; ok {
			out = append(out, *k)
		}
	}
	return out
}

// KeyNames returns key names in insertion order, used by serialization.
// DefaultKey's first-key fallback reads the same order.
func (o *Object) KeyNames() []string {
	out := make([]string, len(o.keyOrder))
	copy(out, o.keyOrder)
	return out
}

// DeleteKey removes a key, if present.
func (o *Object) DeleteKey(name string) {
	if _, ok := o.keys[name]; !ok {
		return
	}
	delete(o.keys, name)
	for i, n := range o.keyOrder {
		if n == name {
			o.keyOrder = append(o.keyOrder[:i], o.keyOrder[i+1:]...)
			break
		}
	}
	o.UpdatedAt = time.Now().UTC()
}

// NeedsRefresh is true iff any contained key is expired.
func (o *Object) NeedsRefresh(now time.Time) bool {
	for _, name := range o.keyOrder {
		if o.keys[name].Expired(now) {
			return true
		}
	}
	return false
}

// DefaultKey applies the resolver's default-key selection rule: `value`,
// then `api_key`, then `access_token`, then the first-inserted key, else
// not-found.
func (o *Object) DefaultKey() (Key, bool) {
	for _, candidate := range []string{"value", "api_key", "access_token"} {
		if k, ok := o.Key(candidate); ok {
			return k, true
		}
	}
	if len(o.keyOrder) == 0 {
		return Key{}, false
	}
	return o.Key(o.keyOrder[0])
}

// RecordUse advances usage counters; called by the Store on each
// successful read.
func (o *Object) RecordUse(now time.Time) {
	o.LastUsedAt = now
	o.UseCount++
}

// Clone returns a deep-enough copy safe for handing to a caller as a
// logical snapshot: the key map and slice headers are copied so callers
// mutating the returned Object cannot corrupt the Store's authoritative
// copy. Secret values themselves are shared Secret handles (immutable by
// design) rather than duplicated enclaves.
func (o *Object) Clone() *Object {
	clone := *o
	clone.keys = make(map[string]*Key, len(o.keys))
	for name, k := range o.keys {
		kk := *k
		clone.keys[name] = &kk
	}
	clone.keyOrder = append([]string(nil), o.keyOrder...)
	clone.Tags = append([]string(nil), o.Tags...)
	return &clone
}

// UsageSpec declares how a tool uses a credential: which keys it needs
// present and where to place their resolved values in outbound requests.
// It never holds secret values, only template strings referencing them.
type UsageSpec struct {
	CredentialID string
	RequiredKeys []string
	Headers      map[string]string // header name -> template string
	Query        map[string]string // query param name -> template string
	Body         map[string]string // body field name -> template string
	Required     bool
	Description  string
	HelpURL      string
}

// MissingKeys returns the subset of RequiredKeys absent from obj, sorted
// for deterministic output.
func (s UsageSpec) MissingKeys(obj *Object) []string {
	var missing []string
	for _, name := range s.RequiredKeys {
		if _, ok := obj.Key(name); !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
