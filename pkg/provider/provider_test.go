package provider_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yujiajie1988/hive/pkg/credential"
	"github.com/yujiajie1988/hive/pkg/provider"
)

func TestStaticDefaultID(t *testing.T) {
	t.Parallel()

	s := provider.NewStatic("")
	assert.Equal(t, "static", s.ID())

	named := provider.NewStatic("literal")
	assert.Equal(t, "literal", named.ID())
}

func TestStaticRefreshReturnsUnchanged(t *testing.T) {
	t.Parallel()

	s := provider.NewStatic("")
	c := credential.NewObject("brave_search", credential.KindAPIKey)
	c.SetKey(credential.Key{Name: "api_key", Value: credential.NewSecret("BSA_X")})

	refreshed, err := s.Refresh(context.Background(), c)
	require.NoError(t, err)
	assert.Same(t, c, refreshed)

	k, ok := refreshed.Key("api_key")
	require.True(t, ok)
	assert.Equal(t, "BSA_X", k.Value.Reveal())
	assert.WithinDuration(t, time.Now().UTC(), refreshed.LastRefreshedAt, time.Second)
}

func TestStaticValidate(t *testing.T) {
	t.Parallel()

	s := provider.NewStatic("")

	empty := credential.NewObject("x", credential.KindCustom)
	ok, err := s.Validate(context.Background(), empty)
	require.NoError(t, err)
	assert.False(t, ok)

	withKey := credential.NewObject("y", credential.KindAPIKey)
	withKey.SetKey(credential.Key{Name: "api_key", Value: credential.NewSecret("v")})
	ok, err = s.Validate(context.Background(), withKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStaticNeverRequestsRefreshOrRevoke(t *testing.T) {
	t.Parallel()

	s := provider.NewStatic("")
	expired := credential.NewObject("z", credential.KindAPIKey)
	past := time.Now().Add(-time.Hour)
	expired.SetKey(credential.Key{Name: "api_key", Value: credential.NewSecret("v"), ExpiresAt: &past})

	assert.False(t, s.ShouldRefresh(expired, time.Now()))

	revoked, err := s.Revoke(context.Background(), expired)
	require.NoError(t, err)
	assert.False(t, revoked)
}
