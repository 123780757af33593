// Package storage defines the pluggable persistence abstraction for
// credentials and ships several concrete backends: an encrypted file
// store, a read-only environment-variable store, an HTTPS-reachable
// versioned secret manager (Vault-shaped), and cloud-SDK-backed stores for
// AWS Secrets Manager, Azure Key Vault, GCP Secret Manager, and the local
// OS keychain.
package storage

import (
	"context"

	"github.com/yujiajie1988/hive/pkg/credential"
)

// Backend is the persistence authority for credentials: save, load,
// delete, list, exists. A backend declares whether it accepts writes;
// read-only backends fail Save with *credential.ValidationFailureError.
type Backend interface {
	// Save persists c, overwriting any existing record with the same ID.
	Save(ctx context.Context, c *credential.Object) error

	// Load returns the credential for id, or *credential.NotFoundError if
	// absent.
	Load(ctx context.Context, id string) (*credential.Object, error)

	// Delete removes the credential for id, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// ListAll returns every known credential ID.
	ListAll(ctx context.Context) ([]string, error)

	// Exists reports whether a credential is present without loading it.
	Exists(ctx context.Context, id string) (bool, error)

	// Writable reports whether Save/Delete are supported.
	Writable() bool
}

// record is EncryptedFileBackend's serialized shape: identifier, kind,
// provider identifier, every key with its value and expiration, and the
// usage counters as of save time. The Vault, AWS, Azure, GCP and keychain
// backends do not use it; they store flatten's shape, which keeps only
// kind, provider identifier, key values and expirations, so usage
// counters are not preserved by those backends.
type record struct {
	ID              string            `json:"id"`
	Kind            string            `json:"credential_type"`
	ProviderID      string            `json:"provider_id"`
	AutoRefresh     bool              `json:"auto_refresh"`
	Description     string            `json:"description"`
	Tags            []string          `json:"tags"`
	HealthCheckName string            `json:"health_check_name,omitempty"`
	LastRefreshedAt string            `json:"last_refreshed_at,omitempty"`
	LastUsedAt      string            `json:"last_used_at,omitempty"`
	UseCount        int64             `json:"use_count"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
	Keys            map[string]keyRec `json:"keys"`
	KeyOrder        []string          `json:"key_order"`
}

type keyRec struct {
	Value     string            `json:"value"`
	ExpiresAt string            `json:"expires_at,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
