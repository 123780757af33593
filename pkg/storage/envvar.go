package storage

import (
	"context"
	"os"
	"strings"

	"github.com/yujiajie1988/hive/pkg/credential"
)

// EnvVarBackend is a read-only backend mapping credential IDs to
// environment variable names. Unlisted IDs fall back to
// <UPPERCASE_ID>_API_KEY. Every call re-reads the process environment
// (nothing is cached), matching spec.md §9's resolution of the
// process-env-wins open question.
type EnvVarBackend struct {
	// Mapping is the explicit credential id -> environment variable name
	// table. IDs absent from Mapping use the <UPPERCASE_ID>_API_KEY
	// convention.
	Mapping map[string]string
}

// NewEnvVarBackend constructs a backend with the given explicit mapping.
// A nil mapping is valid: every id then resolves via the default
// convention.
func NewEnvVarBackend(mapping map[string]string) *EnvVarBackend {
	return &EnvVarBackend{Mapping: mapping}
}

// EnvVarForID returns the environment variable name id resolves to: the
// explicit mapping entry if present, else the <UPPERCASE_ID>_API_KEY
// convention.
func (b *EnvVarBackend) EnvVarForID(id string) string {
	if name, ok := b.Mapping[id]; ok {
		return name
	}
	return strings.ToUpper(id) + "_API_KEY"
}

// Writable is always false: this backend never accepts writes.
func (b *EnvVarBackend) Writable() bool { return false }

// Save always fails: the environment-variable backend is read-only.
func (b *EnvVarBackend) Save(context.Context, *credential.Object) error {
	return &credential.ValidationFailureError{Reason: "environment-variable backend is read-only"}
}

// Load constructs a single-key API_KEY credential from the environment
// variable mapped to id.
func (b *EnvVarBackend) Load(_ context.Context, id string) (*credential.Object, error) {
	envVar := b.EnvVarForID(id)
	value, ok := os.LookupEnv(envVar)
	if !ok || value == "" {
		return nil, &credential.NotFoundError{ID: id}
	}

	obj := credential.NewObject(id, credential.KindAPIKey)
	obj.SetKey(credential.Key{Name: "api_key", Value: credential.NewSecret(value)})
	return obj, nil
}

// Delete always fails: read-only.
func (b *EnvVarBackend) Delete(context.Context, string) (bool, error) {
	return false, &credential.ValidationFailureError{Reason: "environment-variable backend is read-only"}
}

// ListAll returns the IDs explicitly configured in Mapping. IDs relying on
// the implicit <UPPERCASE_ID>_API_KEY convention cannot be enumerated
// without prior knowledge of the id space.
func (b *EnvVarBackend) ListAll(context.Context) ([]string, error) {
	ids := make([]string, 0, len(b.Mapping))
	for id := range b.Mapping {
		ids = append(ids, id)
	}
	return ids, nil
}

// Exists reports whether the mapped environment variable is set and
// non-empty.
func (b *EnvVarBackend) Exists(_ context.Context, id string) (bool, error) {
	value, ok := os.LookupEnv(b.EnvVarForID(id))
	return ok && value != "", nil
}

var _ Backend = (*EnvVarBackend)(nil)
