package credential_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yujiajie1988/hive/pkg/credential"
)

func TestObjectDefaultKeySelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		keys    []string
		want    string
		wantErr bool
	}{
		{name: "value_present", keys: []string{"value", "api_key"}, want: "value"},
		{name: "falls_back_to_api_key", keys: []string{"api_key", "access_token"}, want: "api_key"},
		{name: "falls_back_to_access_token", keys: []string{"access_token"}, want: "access_token"},
		{name: "falls_back_to_first_inserted", keys: []string{"custom_first", "custom_second"}, want: "custom_first"},
		{name: "empty_fails", keys: nil, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			obj := credential.NewObject("svc", credential.KindAPIKey)
			for _, k := range tt.keys {
				obj.SetKey(credential.Key{Name: k, Value: credential.NewSecret(k + "-value")})
			}

			got, ok := obj.DefaultKey()
			if tt.wantErr {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestObjectNeedsRefresh(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	obj := credential.NewObject("svc", credential.KindOAuth2)
	obj.SetKey(credential.Key{Name: "access_token", Value: credential.NewSecret("t"), ExpiresAt: &future})
	assert.False(t, obj.NeedsRefresh(now))

	obj.SetKey(credential.Key{Name: "refresh_token", Value: credential.NewSecret("r"), ExpiresAt: &past})
	assert.True(t, obj.NeedsRefresh(now))
}

func TestObjectSetKeyAdvancesUpdatedAt(t *testing.T) {
	t.Parallel()

	obj := credential.NewObject("svc", credential.KindAPIKey)
	before := obj.UpdatedAt

	time.Sleep(time.Millisecond)
	obj.SetKey(credential.Key{Name: "api_key", Value: credential.NewSecret("x")})

	assert.True(t, obj.UpdatedAt.After(before))
}

func TestObjectCloneIsIndependent(t *testing.T) {
	t.Parallel()

	obj := credential.NewObject("svc", credential.KindAPIKey)
	obj.SetKey(credential.Key{Name: "api_key", Value: credential.NewSecret("x")})

	clone := obj.Clone()
	clone.SetKey(credential.Key{Name: "extra", Value: credential.NewSecret("y")})

	assert.Len(t, obj.Keys(), 1)
	assert.Len(t, clone.Keys(), 2)
}

func TestUsageSpecMissingKeys(t *testing.T) {
	t.Parallel()

	obj := credential.NewObject("github_oauth", credential.KindOAuth2)
	obj.SetKey(credential.Key{Name: "access_token", Value: credential.NewSecret("ghp_123")})

	spec := credential.UsageSpec{
		CredentialID: "github_oauth",
		RequiredKeys: []string{"access_token", "refresh_token"},
	}

	assert.Equal(t, []string{"refresh_token"}, spec.MissingKeys(obj))
}

func TestSecretNeverLeaksThroughFormatting(t *testing.T) {
	t.Parallel()

	s := credential.NewSecret("super-secret-value")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", s.GoString())

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(data))

	assert.Equal(t, "super-secret-value", s.Reveal())
}
