package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/yujiajie1988/hive/pkg/credential"
)

// keychainClient is the subset of github.com/zalando/go-keyring this
// backend depends on, narrowed for mockability in tests.
type keychainClient interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
	Delete(service, account string) error
}

type realKeychainClient struct{}

func (realKeychainClient) Get(service, account string) (string, error) {
	return keyring.Get(service, account)
}

func (realKeychainClient) Set(service, account, value string) error {
	return keyring.Set(service, account, value)
}

func (realKeychainClient) Delete(service, account string) error {
	return keyring.Delete(service, account)
}

// KeychainConfig configures a KeychainBackend.
type KeychainConfig struct {
	// ServicePrefix is prepended to every credential id before it becomes
	// the keychain "service" name, e.g. "hive" turns id "github_oauth"
	// into service "hive.github_oauth".
	ServicePrefix string
	// Account is the fixed keychain "account" name every credential is
	// stored under; OS keychains key items by service+account, and this
	// backend only needs one account per service since the whole
	// credential bundle is serialized into a single secret value.
	Account string
	// client overrides the real go-keyring calls, for testing.
	client keychainClient
}

// KeychainBackend persists each credential as one JSON secret value in the
// OS keychain (macOS Keychain, Linux Secret Service, Windows Credential
// Manager — whichever github.com/zalando/go-keyring resolves to), keyed by
// service=<prefix>.<id>, account=<fixed account>.
type KeychainBackend struct {
	client  keychainClient
	prefix  string
	account string
}

// NewKeychainBackend constructs a backend against the real OS keychain.
func NewKeychainBackend(cfg KeychainConfig) *KeychainBackend {
	client := cfg.client
	if client == nil {
		client = realKeychainClient{}
	}
	account := cfg.Account
	if account == "" {
		account = "default"
	}
	return &KeychainBackend{client: client, prefix: cfg.ServicePrefix, account: account}
}

func (b *KeychainBackend) Writable() bool { return true }

func (b *KeychainBackend) service(id string) string {
	if b.prefix == "" {
		return id
	}
	if strings.HasPrefix(id, b.prefix+".") {
		return id
	}
	return b.prefix + "." + id
}

// Save serializes the credential and stores it under this backend's
// service/account pair.
func (b *KeychainBackend) Save(_ context.Context, c *credential.Object) error {
	payload, err := json.Marshal(flatten(c))
	if err != nil {
		return fmt.Errorf("storage: marshal credential %s: %w", c.ID, err)
	}
	if err := b.client.Set(b.service(c.ID), b.account, string(payload)); err != nil {
		return &credential.BackendUnavailableError{ID: c.ID, Reason: err.Error()}
	}
	return nil
}

// Load fetches and reconstructs the credential from its keychain item.
func (b *KeychainBackend) Load(_ context.Context, id string) (*credential.Object, error) {
	value, err := b.client.Get(b.service(id), b.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, &credential.NotFoundError{ID: id}
		}
		return nil, &credential.BackendUnavailableError{ID: id, Reason: err.Error()}
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(value), &data); err != nil {
		return nil, &credential.ValidationFailureError{Reason: fmt.Sprintf("keychain backend: malformed secret %s: %v", id, err)}
	}
	return unflatten(id, data), nil
}

// Delete removes the keychain item, reporting whether it existed.
func (b *KeychainBackend) Delete(_ context.Context, id string) (bool, error) {
	err := b.client.Delete(b.service(id), b.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return false, nil
		}
		return false, &credential.BackendUnavailableError{ID: id, Reason: err.Error()}
	}
	return true, nil
}

// ListAll is unsupported: OS keychains provide no enumeration API that
// go-keyring exposes uniformly across platforms.
func (b *KeychainBackend) ListAll(_ context.Context) ([]string, error) {
	return nil, &credential.ValidationFailureError{Reason: "keychain backend: listing all credentials is not supported"}
}

// Exists probes via Get.
func (b *KeychainBackend) Exists(_ context.Context, id string) (bool, error) {
	_, err := b.client.Get(b.service(id), b.account)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return false, nil
	}
	return false, &credential.BackendUnavailableError{ID: id, Reason: err.Error()}
}

var _ Backend = (*KeychainBackend)(nil)
