package cryptoenv_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yujiajie1988/hive/internal/cryptoenv"
)

func TestSealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x42}, cryptoenv.KeySize)
	env, err := cryptoenv.NewEnvelope(key, "")
	require.NoError(t, err)
	assert.False(t, env.Generated)

	plaintext := []byte("sk_live_secretvalue")
	ciphertext, err := env.Seal(plaintext)
	require.NoError(t, err)

	assert.False(t, bytes.Contains(ciphertext, plaintext), "ciphertext must never contain the plaintext as a substring")

	got, err := env.Open(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestOpenFailsWithWrongKey(t *testing.T) {
	t.Parallel()

	key1 := bytes.Repeat([]byte{0x01}, cryptoenv.KeySize)
	key2 := bytes.Repeat([]byte{0x02}, cryptoenv.KeySize)

	env1, err := cryptoenv.NewEnvelope(key1, "")
	require.NoError(t, err)
	env2, err := cryptoenv.NewEnvelope(key2, "")
	require.NoError(t, err)

	ciphertext, err := env1.Seal([]byte("payload"))
	require.NoError(t, err)

	_, err = env2.Open(ciphertext)
	assert.Error(t, err)
}

func TestNewEnvelopeRejectsWrongKeySize(t *testing.T) {
	t.Parallel()

	_, err := cryptoenv.NewEnvelope([]byte("too-short"), "")
	assert.Error(t, err)
}

func TestNewEnvelopeGeneratesWhenNoKeyOrEnv(t *testing.T) {
	t.Setenv("HIVE_CREDENTIAL_KEY_TEST", "")

	env, err := cryptoenv.NewEnvelope(nil, "HIVE_CREDENTIAL_KEY_TEST")
	require.NoError(t, err)
	assert.True(t, env.Generated)
}

func TestNewEnvelopeReadsHexEncodedEnvVar(t *testing.T) {
	hexKey := "424242424242424242424242424242424242424242424242424242424242424a"
	t.Setenv("HIVE_CREDENTIAL_KEY_HEX_TEST", hexKey)

	env, err := cryptoenv.NewEnvelope(nil, "HIVE_CREDENTIAL_KEY_HEX_TEST")
	require.NoError(t, err)
	assert.False(t, env.Generated)
}

func TestPassphraseDerivedEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	salt := []byte("a-fixed-test-salt")
	env, err := cryptoenv.NewEnvelopeFromPassphrase("correct horse battery staple", salt, 0)
	require.NoError(t, err)

	ciphertext, err := env.Seal([]byte("payload"))
	require.NoError(t, err)

	got, err := env.Open(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}
