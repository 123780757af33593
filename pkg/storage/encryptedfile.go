package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yujiajie1988/hive/internal/cryptoenv"
	"github.com/yujiajie1988/hive/pkg/credential"
)

// EncryptedFileConfig configures EncryptedFileBackend.
type EncryptedFileConfig struct {
	// BasePath is the directory credentials/ and metadata/ are created
	// under.
	BasePath string
	// Key is the 32-byte master key; if empty the HIVE_CREDENTIAL_KEY
	// environment variable (or KeyEnvVar, if set) is consulted, then a
	// fresh key is generated.
	Key []byte
	// KeyEnvVar overrides the default HIVE_CREDENTIAL_KEY environment
	// variable name.
	KeyEnvVar string
	// OnKeyGenerated is called once, synchronously, if no key was
	// supplied or found in the environment — callers use this to emit the
	// one-time persistence warning named in spec.md §4.2.1.
	OnKeyGenerated func(envVar string)
}

// EncryptedFileBackend persists each credential as one AES-256-GCM
// ciphertext under credentials/<id>.enc, plus an advisory index file under
// metadata/index.json.
type EncryptedFileBackend struct {
	basePath string
	envelope *cryptoenv.Envelope

	mu sync.Mutex // serializes index read-modify-write
}

// NewEncryptedFileBackend resolves the master key per the precedence in
// EncryptedFileConfig and prepares the base directory layout.
func NewEncryptedFileBackend(cfg EncryptedFileConfig) (*EncryptedFileBackend, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("storage: base path is required")
	}

	envelope, err := cryptoenv.NewEnvelope(cfg.Key, cfg.KeyEnvVar)
	if err != nil {
		return nil, err
	}
	if envelope.Generated && cfg.OnKeyGenerated != nil {
		cfg.OnKeyGenerated(envelope.EnvVar)
	}

	b := &EncryptedFileBackend{basePath: cfg.BasePath, envelope: envelope}
	if err := os.MkdirAll(b.credentialsDir(), 0o700); err != nil {
		return nil, fmt.Errorf("storage: create credentials dir: %w", err)
	}
	if err := os.MkdirAll(b.metadataDir(), 0o700); err != nil {
		return nil, fmt.Errorf("storage: create metadata dir: %w", err)
	}
	return b, nil
}

func (b *EncryptedFileBackend) credentialsDir() string { return filepath.Join(b.basePath, "credentials") }
func (b *EncryptedFileBackend) metadataDir() string     { return filepath.Join(b.basePath, "metadata") }
func (b *EncryptedFileBackend) indexPath() string       { return filepath.Join(b.metadataDir(), "index.json") }
func (b *EncryptedFileBackend) credentialPath(id string) string {
	return filepath.Join(b.credentialsDir(), id+".enc")
}

// Writable reports true: this backend accepts writes.
func (b *EncryptedFileBackend) Writable() bool { return true }

// Save encrypts the serialized credential and writes it via write-to-temp
// then rename, so a concurrent reader never observes a truncated file.
func (b *EncryptedFileBackend) Save(_ context.Context, c *credential.Object) error {
	plaintext, err := json.Marshal(toRecord(c))
	if err != nil {
		return fmt.Errorf("storage: marshal credential %s: %w", c.ID, err)
	}

	ciphertext, err := b.envelope.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("storage: encrypt credential %s: %w", c.ID, err)
	}

	path := b.credentialPath(c.ID)
	if err := writeFileAtomic(path, ciphertext, 0o600); err != nil {
		return fmt.Errorf("storage: write credential %s: %w", c.ID, err)
	}

	return b.addToIndex(c.ID)
}

// Load decrypts and deserializes the credential for id.
func (b *EncryptedFileBackend) Load(_ context.Context, id string) (*credential.Object, error) {
	ciphertext, err := os.ReadFile(b.credentialPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &credential.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("storage: read credential %s: %w", id, err)
	}

	plaintext, err := b.envelope.Open(ciphertext)
	if err != nil {
		return nil, &credential.DecryptionFailureError{ID: id, Reason: "authentication failed"}
	}

	var r record
	if err := json.Unmarshal(plaintext, &r); err != nil {
		return nil, &credential.DecryptionFailureError{ID: id, Reason: "corrupt payload"}
	}
	return fromRecord(r), nil
}

// Delete removes the credential file and its index entry.
func (b *EncryptedFileBackend) Delete(_ context.Context, id string) (bool, error) {
	err := os.Remove(b.credentialPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: delete credential %s: %w", id, err)
	}
	if err := b.removeFromIndex(id); err != nil {
		return true, err
	}
	return true, nil
}

// ListAll reads the on-disk credentials/ directory directly — the index
// file is advisory, not authoritative, per spec.md §6.
func (b *EncryptedFileBackend) ListAll(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.credentialsDir())
	if err != nil {
		return nil, fmt.Errorf("storage: list credentials: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = ".enc"
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			ids = append(ids, name[:len(name)-len(suffix)])
		}
	}
	return ids, nil
}

// Exists checks for the presence of the credential file without decrypting it.
func (b *EncryptedFileBackend) Exists(_ context.Context, id string) (bool, error) {
	_, err := os.Stat(b.credentialPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat credential %s: %w", id, err)
	}
	return true, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

type fileIndex struct {
	IDs []string `json:"ids"`
}

func (b *EncryptedFileBackend) addToIndex(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.readIndex()
	for _, existing := range idx.IDs {
		if existing == id {
			return nil
		}
	}
	idx.IDs = append(idx.IDs, id)
	return b.writeIndex(idx)
}

func (b *EncryptedFileBackend) removeFromIndex(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.readIndex()
	out := idx.IDs[:0]
	for _, existing := range idx.IDs {
		if existing != id {
			out = append(out, existing)
		}
	}
	idx.IDs = out
	return b.writeIndex(idx)
}

func (b *EncryptedFileBackend) readIndex() fileIndex {
	data, err := os.ReadFile(b.indexPath())
	if err != nil {
		return fileIndex{}
	}
	var idx fileIndex
	_ = json.Unmarshal(data, &idx)
	return idx
}

func (b *EncryptedFileBackend) writeIndex(idx fileIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal index: %w", err)
	}
	return writeFileAtomic(b.indexPath(), data, 0o600)
}

var _ Backend = (*EncryptedFileBackend)(nil)
