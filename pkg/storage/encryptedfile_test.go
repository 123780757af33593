package storage_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yujiajie1988/hive/pkg/credential"
	"github.com/yujiajie1988/hive/pkg/storage"
)

func newTestCredential(id, secretValue string) *credential.Object {
	c := credential.NewObject(id, credential.KindAPIKey)
	c.SetKey(credential.Key{Name: "api_key", Value: credential.NewSecret(secretValue)})
	return c
}

func TestEncryptedFileBackendRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	key := bytes.Repeat([]byte{0x7a}, 32)

	backend, err := storage.NewEncryptedFileBackend(storage.EncryptedFileConfig{BasePath: dir, Key: key})
	require.NoError(t, err)

	want := newTestCredential("service_a", "top-secret-value")
	require.NoError(t, backend.Save(context.Background(), want))

	got, err := backend.Load(context.Background(), "service_a")
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Kind, got.Kind)
	assert.Equal(t, want.ProviderID, got.ProviderID)

	wantKey, _ := want.Key("api_key")
	gotKey, ok := got.Key("api_key")
	require.True(t, ok)
	assert.Equal(t, wantKey.Value.Reveal(), gotKey.Value.Reveal())
}

func TestEncryptedFileCiphertextNeverContainsPlaintext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	key := bytes.Repeat([]byte{0x11}, 32)

	backend, err := storage.NewEncryptedFileBackend(storage.EncryptedFileConfig{BasePath: dir, Key: key})
	require.NoError(t, err)

	secretValue := "do-not-leak-this-value"
	require.NoError(t, backend.Save(context.Background(), newTestCredential("svc", secretValue)))

	raw, err := os.ReadFile(filepath.Join(dir, "credentials", "svc.enc"))
	require.NoError(t, err)

	assert.False(t, bytes.Contains(raw, []byte(secretValue)))
}

func TestEncryptedFileWrongKeyFailsDecryption(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	key1 := bytes.Repeat([]byte{0x01}, 32)
	key2 := bytes.Repeat([]byte{0x02}, 32)

	b1, err := storage.NewEncryptedFileBackend(storage.EncryptedFileConfig{BasePath: dir, Key: key1})
	require.NoError(t, err)
	require.NoError(t, b1.Save(context.Background(), newTestCredential("svc", "v")))

	b2, err := storage.NewEncryptedFileBackend(storage.EncryptedFileConfig{BasePath: dir, Key: key2})
	require.NoError(t, err)

	_, err = b2.Load(context.Background(), "svc")
	require.Error(t, err)
	var decErr *credential.DecryptionFailureError
	assert.ErrorAs(t, err, &decErr)
}

func TestEncryptedFileGeneratedKeyEmitsWarningOnce(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HIVE_CREDENTIAL_KEY_GEN_TEST", "")

	calls := 0
	_, err := storage.NewEncryptedFileBackend(storage.EncryptedFileConfig{
		BasePath:       dir,
		KeyEnvVar:      "HIVE_CREDENTIAL_KEY_GEN_TEST",
		OnKeyGenerated: func(string) { calls++ },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestEncryptedFileDeleteAndList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backend, err := storage.NewEncryptedFileBackend(storage.EncryptedFileConfig{BasePath: dir, Key: bytes.Repeat([]byte{0x9}, 32)})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, backend.Save(ctx, newTestCredential("a", "1")))
	require.NoError(t, backend.Save(ctx, newTestCredential("b", "2")))

	ids, err := backend.ListAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	existed, err := backend.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = backend.Load(ctx, "a")
	var notFound *credential.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	existsB, err := backend.Exists(ctx, "b")
	require.NoError(t, err)
	assert.True(t, existsB)
}
