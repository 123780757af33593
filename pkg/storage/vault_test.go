package storage_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yujiajie1988/hive/pkg/credential"
	"github.com/yujiajie1988/hive/pkg/storage"
)

func TestVaultBackendSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	var stored map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token-123", r.Header.Get("X-Vault-Token"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/secret/data/svc":
			var body struct {
				Data map[string]interface{} `json:"data"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			stored = body.Data
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/secret/data/svc":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"data": stored}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	backend, err := storage.NewVaultBackend(storage.VaultConfig{Address: server.URL, Token: "token-123"})
	require.NoError(t, err)

	c := credential.NewObject("svc", credential.KindAPIKey)
	c.SetKey(credential.Key{Name: "api_key", Value: credential.NewSecret("sk_live")})
	require.NoError(t, backend.Save(context.Background(), c))

	loaded, err := backend.Load(context.Background(), "svc")
	require.NoError(t, err)
	k, ok := loaded.Key("api_key")
	require.True(t, ok)
	assert.Equal(t, "sk_live", k.Value.Reveal())
	assert.Equal(t, credential.KindAPIKey, loaded.Kind)
}

func TestVaultBackendLoadMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	backend, err := storage.NewVaultBackend(storage.VaultConfig{Address: server.URL, Token: "t"})
	require.NoError(t, err)

	_, err = backend.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, credential.IsNotFound(err))
}

func TestVaultBackendUnauthorizedIsValidationFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	backend, err := storage.NewVaultBackend(storage.VaultConfig{Address: server.URL, Token: "bad"})
	require.NoError(t, err)

	_, err = backend.Load(context.Background(), "svc")
	require.Error(t, err)
	var valErr *credential.ValidationFailureError
	assert.ErrorAs(t, err, &valErr)
}

func TestVaultBackendRequiresToken(t *testing.T) {
	t.Setenv("VAULT_TOKEN", "")
	_, err := storage.NewVaultBackend(storage.VaultConfig{Address: "https://vault.example.com"})
	require.Error(t, err)
}
