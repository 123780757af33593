package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yujiajie1988/hive/pkg/credential"
)

// VaultConfig configures a VaultBackend against a versioned key-value
// secret engine reachable over HTTPS (Vault's kv-v2 API shape).
type VaultConfig struct {
	// Address is the base URL, e.g. "https://vault.internal:8200".
	Address string
	// Token authenticates requests. If empty, the VAULT_TOKEN environment
	// variable is consulted at construction time.
	Token string
	// Mount is the secret engine's mount point, default "secret".
	Mount string
	// PathPrefix is prepended to every credential id when building the
	// engine path, e.g. "hive/credentials".
	PathPrefix string
	// Namespace, if set, is sent as X-Vault-Namespace (Vault Enterprise).
	Namespace      string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// VaultBackend persists credentials as flattened key-value documents in a
// Vault-shaped kv-v2 secret engine, per spec.md §4.2.3.
type VaultBackend struct {
	cfg        VaultConfig
	httpClient *http.Client
}

// NewVaultBackend validates cfg, resolving the token from VAULT_TOKEN when
// Token is unset, and constructs a backend.
func NewVaultBackend(cfg VaultConfig) (*VaultBackend, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("storage: vault address is required")
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("VAULT_TOKEN")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("storage: vault token is required (set Token or VAULT_TOKEN)")
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	cfg.Address = strings.TrimSuffix(cfg.Address, "/")
	cfg.PathPrefix = strings.Trim(cfg.PathPrefix, "/")

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &VaultBackend{cfg: cfg, httpClient: httpClient}, nil
}

// Writable is always true.
func (b *VaultBackend) Writable() bool { return true }

func (b *VaultBackend) dataPath(id string) string {
	segments := []string{b.cfg.Mount, "data"}
	if b.cfg.PathPrefix != "" {
		segments = append(segments, b.cfg.PathPrefix)
	}
	segments = append(segments, id)
	return "/v1/" + strings.Join(segments, "/")
}

func (b *VaultBackend) metadataPath(id string) string {
	segments := []string{b.cfg.Mount, "metadata"}
	if b.cfg.PathPrefix != "" {
		segments = append(segments, b.cfg.PathPrefix)
	}
	segments = append(segments, id)
	return "/v1/" + strings.Join(segments, "/")
}

func (b *VaultBackend) listPath() string {
	segments := []string{b.cfg.Mount, "metadata"}
	segments = append(segments, strings.TrimSuffix(b.cfg.PathPrefix, "/"))
	return "/v1/" + strings.Join(segments, "/")
}

// flatten serializes a credential into Vault's flat key-value shape: each
// key's value under its own name, plus reserved-prefixed metadata fields
// (_type, _provider_id, _expires_<keyname>) reconstructing kind, provider
// id and expirations on read. No other field is kept: key order,
// description, tags, auto-refresh, timestamps and usage counters are not
// preserved.
func flatten(c *credential.Object) map[string]interface{} {
	data := map[string]interface{}{
		"_type":        string(c.Kind),
		"_provider_id": c.ProviderID,
	}
	for _, k := range c.Keys() {
		data[k.Name] = k.Value.Reveal()
		if k.ExpiresAt != nil {
			data["_expires_"+k.Name] = k.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	return data
}

// unflatten reverses flatten, reconstructing per-key expirations from the
// reserved _expires_<keyname> fields.
func unflatten(id string, data map[string]interface{}) *credential.Object {
	kind := credential.KindCustom
	if t, ok := data["_type"].(string); ok && t != "" {
		kind = credential.Kind(t)
	}
	c := credential.NewObject(id, kind)
	if p, ok := data["_provider_id"].(string); ok {
		c.ProviderID = p
	}

	expirations := make(map[string]time.Time)
	for name, raw := range data {
		if !strings.HasPrefix(name, "_expires_") {
			continue
		}
		if s, ok := raw.(string); ok {
			if parsed, err := time.Parse(time.RFC3339, s); err == nil {
				expirations[strings.TrimPrefix(name, "_expires_")] = parsed
			}
		}
	}

	for name, raw := range data {
		if strings.HasPrefix(name, "_") {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			continue
		}
		key := credential.Key{Name: name, Value: credential.NewSecret(value)}
		if exp, ok := expirations[name]; ok {
			e := exp
			key.ExpiresAt = &e
		}
		c.SetKey(key)
	}
	return c
}

// Save writes the flattened credential to the kv-v2 data path.
func (b *VaultBackend) Save(ctx context.Context, c *credential.Object) error {
	payload, err := json.Marshal(map[string]interface{}{"data": flatten(c)})
	if err != nil {
		return fmt.Errorf("storage: marshal credential %s: %w", c.ID, err)
	}

	status, _, err := b.do(ctx, http.MethodPost, b.dataPath(c.ID), payload)
	if err != nil {
		return &credential.BackendUnavailableError{ID: c.ID, Reason: err.Error()}
	}
	return classifyVaultStatus(c.ID, status)
}

// Load reads and reconstructs a credential from the kv-v2 data path. A 404
// is absence, not an error, per spec.md §4.2.3.
func (b *VaultBackend) Load(ctx context.Context, id string) (*credential.Object, error) {
	status, body, err := b.do(ctx, http.MethodGet, b.dataPath(id), nil)
	if err != nil {
		return nil, &credential.BackendUnavailableError{ID: id, Reason: err.Error()}
	}
	if status == http.StatusNotFound {
		return nil, &credential.NotFoundError{ID: id}
	}
	if err := classifyVaultStatus(id, status); err != nil {
		return nil, err
	}

	var response struct {
		Data struct {
			Data map[string]interface{} `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &credential.ValidationFailureError{Reason: fmt.Sprintf("vault backend: malformed response for %s: %v", id, err)}
	}
	if len(response.Data.Data) == 0 {
		return nil, &credential.NotFoundError{ID: id}
	}
	return unflatten(id, response.Data.Data), nil
}

// Delete issues a metadata delete, which removes all versions and history.
func (b *VaultBackend) Delete(ctx context.Context, id string) (bool, error) {
	existed, err := b.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}

	status, _, err := b.do(ctx, http.MethodDelete, b.metadataPath(id), nil)
	if err != nil {
		return false, &credential.BackendUnavailableError{ID: id, Reason: err.Error()}
	}
	if err := classifyVaultStatus(id, status); err != nil {
		return false, err
	}
	return true, nil
}

// ListAll lists the keys under the configured mount/prefix.
func (b *VaultBackend) ListAll(ctx context.Context) ([]string, error) {
	status, body, err := b.do(ctx, "LIST", b.listPath(), nil)
	if err != nil {
		return nil, &credential.BackendUnavailableError{Reason: err.Error()}
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err := classifyVaultStatus("", status); err != nil {
		return nil, err
	}

	var response struct {
		Data struct {
			Keys []string `json:"keys"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &credential.ValidationFailureError{Reason: "vault backend: malformed list response: " + err.Error()}
	}
	return response.Data.Keys, nil
}

// Exists checks presence with a GET of the data path, without
// reconstructing the credential.
func (b *VaultBackend) Exists(ctx context.Context, id string) (bool, error) {
	status, _, err := b.do(ctx, http.MethodGet, b.dataPath(id), nil)
	if err != nil {
		return false, &credential.BackendUnavailableError{ID: id, Reason: err.Error()}
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	if err := classifyVaultStatus(id, status); err != nil {
		return false, err
	}
	return true, nil
}

func classifyVaultStatus(id string, status int) error {
	switch {
	case status >= 200 && status < 300, status == http.StatusNotFound:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &credential.ValidationFailureError{Reason: fmt.Sprintf("vault backend: access denied for %s (status %d)", id, status)}
	default:
		return &credential.BackendUnavailableError{ID: id, Reason: "vault backend: status " + strconv.Itoa(status)}
	}
}

func (b *VaultBackend) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.cfg.Address+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-Vault-Token", b.cfg.Token)
	if b.cfg.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", b.cfg.Namespace)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

var _ Backend = (*VaultBackend)(nil)
