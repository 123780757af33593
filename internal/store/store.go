// Package store implements the Credential Store: the orchestrator that
// composes a storage backend, a registry of lifecycle providers, the
// template resolver, and a bounded TTL cache behind one public façade.
// Callers interact almost exclusively with this package.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yujiajie1988/hive/internal/logging"
	"github.com/yujiajie1988/hive/internal/template"
	"github.com/yujiajie1988/hive/pkg/credential"
	"github.com/yujiajie1988/hive/pkg/provider"
	"github.com/yujiajie1988/hive/pkg/storage"
)

// DefaultCacheTTL is the Store's default cache entry lifetime.
const DefaultCacheTTL = 300 * time.Second

// Config configures a new Store. A zero Config is not usable directly;
// use New, which fills in the documented defaults.
type Config struct {
	// Backend is the persistence authority. Defaults to an
	// environment-variable backend with no explicit mapping.
	Backend storage.Backend
	// Providers seeds the provider registry, indexed by Provider.ID().
	// Defaults to {Static}.
	Providers []provider.Provider
	// CacheTTL is how long a cached read is considered fresh. Defaults to
	// DefaultCacheTTL.
	CacheTTL time.Duration
	// AutoRefresh is the refreshIfNeeded value that Get, GetKey and
	// GetDefault pass to GetCredential. It has no other default: the zero
	// value is false, so a Store built without setting it never refreshes
	// on those paths.
	AutoRefresh bool
	// Logger receives diagnostic messages (cache misses, refresh
	// attempts); secret values are never passed to it directly.
	Logger *logging.Logger
	// Metrics, if set, records cache hit/miss and refresh-outcome
	// counters. Nil disables metrics entirely.
	Metrics *Metrics
}

type cacheEntry struct {
	credential *credential.Object
	insertedAt time.Time
}

// Store is the public façade composing storage, providers, the template
// resolver, and the cache behind one entry point. A Store is safe for
// concurrent use by multiple goroutines.
type Store struct {
	backend     storage.Backend
	cacheTTL    time.Duration
	autoRefresh bool
	logger      *logging.Logger
	metrics     *Metrics

	mu        sync.RWMutex // guards providers, usages, cache
	providers map[string]provider.Provider
	usages    map[string]credential.UsageSpec
	cache     map[string]cacheEntry

	refreshGroup singleflight.Group // at-most-one-refresh-per-id

	resolver *template.Resolver
}

// New constructs a Store. A nil Backend defaults to a read-only
// environment-variable backend; an empty Providers list defaults to
// {Static}; a zero CacheTTL defaults to DefaultCacheTTL.
func New(cfg Config) *Store {
	backend := cfg.Backend
	if backend == nil {
		backend = storage.NewEnvVarBackend(nil)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(false, false)
	}

	s := &Store{
		backend:     backend,
		cacheTTL:    ttl,
		autoRefresh: cfg.AutoRefresh,
		logger:      logger,
		metrics:     cfg.Metrics,
		providers:   make(map[string]provider.Provider),
		usages:      make(map[string]credential.UsageSpec),
		cache:       make(map[string]cacheEntry),
	}
	s.resolver = template.New(s)

	providers := cfg.Providers
	if len(providers) == 0 {
		providers = []provider.Provider{provider.NewStatic("")}
	}
	for _, p := range providers {
		s.providers[p.ID()] = p
	}

	return s
}

// RegisterProvider inserts p into the registry, replacing any existing
// provider with the same ID.
func (s *Store) RegisterProvider(p provider.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID()] = p
}

// RegisterUsage records a tool's usage declaration, keyed by
// spec.CredentialID. At most one spec is kept per id; later registrations
// replace earlier ones.
func (s *Store) RegisterUsage(spec credential.UsageSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usages[spec.CredentialID] = spec
}

// providerFor resolves the provider bound to c, falling back to the
// conventional "static" provider id when c.ProviderID is empty. Must be
// called with s.mu held (read or write).
func (s *Store) providerFor(c *credential.Object) provider.Provider {
	id := c.ProviderID
	if id == "" {
		id = "static"
	}
	if p, ok := s.providers[id]; ok {
		return p
	}
	return nil
}

// cacheGet returns the cached credential for id if present and fresher
// than cacheTTL. Must be called with s.mu held for reading.
func (s *Store) cacheGet(id string) (*credential.Object, bool) {
	entry, ok := s.cache[id]
	if !ok {
		return nil, false
	}
	if time.Since(entry.insertedAt) >= s.cacheTTL {
		return nil, false
	}
	return entry.credential, true
}

func (s *Store) cachePut(id string, c *credential.Object) {
	s.mu.Lock()
	s.cache[id] = cacheEntry{credential: c, insertedAt: time.Now()}
	s.mu.Unlock()
}

func (s *Store) cacheEvict(id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
}

// GetCredential is the Store's primary read path: cache hit returns
// immediately; a miss loads from storage; if refreshIfNeeded and the
// bound provider's ShouldRefresh is true, Refresh is invoked and the
// result persisted before being cached and returned. Refresh for any one
// id is serialized via singleflight so concurrent callers observe exactly
// one Refresh invocation.
func (s *Store) GetCredential(ctx context.Context, id string, refreshIfNeeded bool) (*credential.Object, error) {
	s.mu.Lock()
	if cached, ok := s.cacheGet(id); ok {
		cached.RecordUse(time.Now().UTC())
		s.mu.Unlock()
		s.metrics.hit()
		return cached.Clone(), nil
	}
	s.mu.Unlock()
	s.metrics.miss()
	s.logger.Debug("cache miss for credential %s, loading from backend", id)

	loaded, err := s.backend.Load(ctx, id)
	if err != nil {
		s.logger.Debug("load failed for credential %s: %s", id, redactObjectSecrets(nil, err.Error()))
		return nil, err
	}

	if refreshIfNeeded {
		s.mu.RLock()
		p := s.providerFor(loaded)
		s.mu.RUnlock()

		if p != nil && p.ShouldRefresh(loaded, time.Now().UTC()) {
			s.logger.Debug("refreshing credential %s via provider %s", id, p.ID())
			refreshed, err := s.refreshSerialized(ctx, id, p, loaded)
			if err != nil {
				s.logger.Error("refresh failed for credential %s: %s", id, redactObjectSecrets(loaded, err.Error()))
				return nil, err
			}
			s.logger.Info("refreshed credential %s", id)
			loaded = refreshed
		}
	}

	s.mu.Lock()
	loaded.RecordUse(time.Now().UTC())
	s.cache[id] = cacheEntry{credential: loaded, insertedAt: time.Now()}
	s.mu.Unlock()
	return loaded.Clone(), nil
}

// refreshSerialized invokes provider.Refresh for id via singleflight so
// concurrent callers observing the same expired credential trigger exactly
// one refresh. The cache entry is evicted before the new value is
// persisted and recached, so no reader can observe a stale entry after a
// successful refresh.
func (s *Store) refreshSerialized(ctx context.Context, id string, p provider.Provider, current *credential.Object) (*credential.Object, error) {
	result, err, _ := s.refreshGroup.Do(id, func() (interface{}, error) {
		s.cacheEvict(id)

		// A refresh for id that finished after current was loaded has
		// already been persisted; reuse it rather than refreshing again.
		if latest, lerr := s.backend.Load(ctx, id); lerr == nil && !p.ShouldRefresh(latest, time.Now().UTC()) {
			return latest, nil
		}

		refreshed, err := p.Refresh(ctx, current)
		if err != nil {
			s.metrics.refreshed("failure")
			return nil, err
		}
		if err := s.backend.Save(ctx, refreshed); err != nil {
			s.metrics.refreshed("failure")
			return nil, fmt.Errorf("store: persist refreshed credential %s: %w", id, err)
		}
		s.metrics.refreshed("success")
		return refreshed, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*credential.Object), nil
}

// Get returns this package's template.Getter implementation, applying the
// Store's default AutoRefresh setting — the Resolver calls this for every
// {{id}}/{{id.key}} reference.
func (s *Store) Get(ctx context.Context, id string) (*credential.Object, error) {
	return s.GetCredential(ctx, id, s.autoRefresh)
}

// GetKey returns the secret value for a specific key, or
// *credential.NotFoundError / *credential.KeyNotFoundError.
func (s *Store) GetKey(ctx context.Context, id, keyName string) (string, error) {
	c, err := s.GetCredential(ctx, id, s.autoRefresh)
	if err != nil {
		return "", err
	}
	k, ok := c.Key(keyName)
	if !ok {
		return "", &credential.KeyNotFoundError{ID: id, Key: keyName}
	}
	s.logger.Debug("resolved %s.%s = %v", id, keyName, logging.Secret(k.Value.Reveal()))
	return k.Value.Reveal(), nil
}

// GetDefault returns the default-key value for id, per the same
// selection rule the template resolver uses.
func (s *Store) GetDefault(ctx context.Context, id string) (string, error) {
	c, err := s.GetCredential(ctx, id, s.autoRefresh)
	if err != nil {
		return "", err
	}
	k, ok := c.DefaultKey()
	if !ok {
		return "", &credential.KeyNotFoundError{ID: id, Key: "<default>"}
	}
	s.logger.Debug("resolved %s.%s (default) = %v", id, k.Name, logging.Secret(k.Value.Reveal()))
	return k.Value.Reveal(), nil
}

// Resolve delegates to the template resolver.
func (s *Store) Resolve(ctx context.Context, tmpl string, failOnMissing bool) (string, error) {
	return s.resolver.Resolve(ctx, tmpl, failOnMissing)
}

// ResolveHeaders delegates to the template resolver.
func (s *Store) ResolveHeaders(ctx context.Context, headers map[string]string, failOnMissing bool) (map[string]string, error) {
	return s.resolver.ResolveHeaders(ctx, headers, failOnMissing)
}

// ResolveForUsage resolves the registered usage spec's header map for id.
// Fails with *credential.ValidationFailureError if no spec is registered.
func (s *Store) ResolveForUsage(ctx context.Context, id string) (map[string]string, error) {
	s.mu.RLock()
	spec, ok := s.usages[id]
	s.mu.RUnlock()
	if !ok {
		return nil, &credential.ValidationFailureError{Reason: fmt.Sprintf("no usage spec registered for credential %q", id)}
	}
	return s.resolver.ResolveHeaders(ctx, spec.Headers, true)
}

// SaveCredential persists c, then populates the cache so a subsequent read
// observes it (read-your-writes, per spec.md §5).
func (s *Store) SaveCredential(ctx context.Context, c *credential.Object) error {
	if err := s.backend.Save(ctx, c); err != nil {
		s.logger.Debug("save failed for credential %s: %s", c.ID, redactObjectSecrets(c, err.Error()))
		return err
	}
	s.logger.Debug("saved credential %s (%d keys)", c.ID, len(c.Keys()))
	s.cachePut(c.ID, c.Clone())
	return nil
}

// DeleteCredential evicts the cache entry, then deletes from storage,
// reporting whether the credential existed.
func (s *Store) DeleteCredential(ctx context.Context, id string) (bool, error) {
	s.cacheEvict(id)
	existed, err := s.backend.Delete(ctx, id)
	if err != nil {
		s.logger.Debug("delete failed for credential %s: %s", id, redactObjectSecrets(nil, err.Error()))
		return existed, err
	}
	s.logger.Debug("deleted credential %s (existed=%v)", id, existed)
	return existed, nil
}

// ListCredentials delegates to storage.
func (s *Store) ListCredentials(ctx context.Context) ([]string, error) {
	return s.backend.ListAll(ctx)
}

// IsAvailable reports whether GetCredential without refresh returns a
// present credential.
func (s *Store) IsAvailable(ctx context.Context, id string) bool {
	_, err := s.GetCredential(ctx, id, false)
	return err == nil
}

// ValidateForUsage returns the subset of the registered usage spec's
// RequiredKeys absent from the referenced credential, sorted for
// deterministic output. Fails with *credential.ValidationFailureError if
// no usage spec is registered, or *credential.NotFoundError if the
// credential itself is absent.
func (s *Store) ValidateForUsage(ctx context.Context, id string) ([]string, error) {
	s.mu.RLock()
	spec, ok := s.usages[id]
	s.mu.RUnlock()
	if !ok {
		return nil, &credential.ValidationFailureError{Reason: fmt.Sprintf("no usage spec registered for credential %q", id)}
	}

	c, err := s.GetCredential(ctx, spec.CredentialID, false)
	if err != nil {
		return nil, err
	}

	missing := spec.MissingKeys(c)
	sort.Strings(missing)
	return missing, nil
}

// secretValues collects every key value held by c, for scrubbing free-form
// error/diagnostic text before it reaches the logger. c may be nil.
func secretValues(c *credential.Object) []string {
	if c == nil {
		return nil
	}
	keys := c.Keys()
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, k.Value.Reveal())
	}
	return values
}

// redactObjectSecrets scrubs any of c's key values that appear verbatim in
// text (e.g. a provider- or backend-supplied error reason) before it is
// logged.
func redactObjectSecrets(c *credential.Object, text string) string {
	return logging.Redact(text, secretValues(c))
}

var _ template.Getter = (*Store)(nil)
var _ provider.CredentialGetter = (*Store)(nil)
