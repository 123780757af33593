// Package storetest provides a contract test suite shared by every
// storage.Backend and provider.Provider implementation, so a new backend
// or provider is exercised against the same invariants as the built-in
// ones.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yujiajie1988/hive/pkg/credential"
	"github.com/yujiajie1988/hive/pkg/provider"
	"github.com/yujiajie1988/hive/pkg/storage"
)

// BackendTestCase names a storage.Backend under test.
type BackendTestCase struct {
	// Name identifies the backend in test output.
	Name string
	// Backend is the implementation under test. Save/Load/Delete must
	// operate against a throwaway id space — the suite writes and deletes
	// "storetest-roundtrip", loads "storetest-definitely-absent", and uses
	// "storetest-rejected" for the read-only rejection checks.
	Backend storage.Backend
	// SkipWrites is set for read-only backends (EnvVarBackend); Save/Delete
	// are then expected to fail with *credential.ValidationFailureError
	// rather than succeed.
	SkipWrites bool
}

// RunBackendContractTests runs the full storage.Backend contract suite.
func RunBackendContractTests(t *testing.T, tc BackendTestCase) {
	t.Helper()
	require.NotNil(t, tc.Backend, "Backend cannot be nil")

	t.Run("LoadMissingReturnsNotFound", func(t *testing.T) {
		testLoadMissing(t, tc)
	})

	if tc.SkipWrites {
		t.Run("WritesRejected", func(t *testing.T) {
			testWritesRejected(t, tc)
		})
		return
	}

	t.Run("SaveLoadRoundTrip", func(t *testing.T) {
		testSaveLoadRoundTrip(t, tc)
	})

	t.Run("ExistsReflectsState", func(t *testing.T) {
		testExistsReflectsState(t, tc)
	})

	t.Run("ListAllIncludesSaved", func(t *testing.T) {
		testListAllIncludesSaved(t, tc)
	})

	t.Run("DeleteReportsPriorExistence", func(t *testing.T) {
		testDeleteReportsPriorExistence(t, tc)
	})
}

func testLoadMissing(t *testing.T, tc BackendTestCase) {
	t.Helper()
	ctx := context.Background()

	_, err := tc.Backend.Load(ctx, "storetest-definitely-absent")
	require.Error(t, err)
	assert.True(t, credential.IsNotFound(err), "expected *credential.NotFoundError, got %T: %v", err, err)
}

func testWritesRejected(t *testing.T, tc BackendTestCase) {
	t.Helper()
	ctx := context.Background()

	assert.False(t, tc.Backend.Writable())

	err := tc.Backend.Save(ctx, credential.NewObject("storetest-rejected", credential.KindAPIKey))
	require.Error(t, err)
	var valErr *credential.ValidationFailureError
	assert.ErrorAs(t, err, &valErr)

	_, err = tc.Backend.Delete(ctx, "storetest-rejected")
	require.Error(t, err)
	assert.ErrorAs(t, err, &valErr)
}

func testSaveLoadRoundTrip(t *testing.T, tc BackendTestCase) {
	t.Helper()
	ctx := context.Background()
	const id = "storetest-roundtrip"

	assert.True(t, tc.Backend.Writable())

	original := credential.NewObject(id, credential.KindAPIKey)
	original.SetKey(credential.Key{Name: "api_key", Value: credential.NewSecret("contract-test-value")})
	require.NoError(t, tc.Backend.Save(ctx, original))
	defer func() { _, _ = tc.Backend.Delete(ctx, id) }()

	loaded, err := tc.Backend.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, loaded.ID)

	k, ok := loaded.Key("api_key")
	require.True(t, ok, "round-tripped credential is missing its api_key")
	assert.Equal(t, "contract-test-value", k.Value.Reveal())
}

func testExistsReflectsState(t *testing.T, tc BackendTestCase) {
	t.Helper()
	ctx := context.Background()
	const id = "storetest-roundtrip"

	exists, err := tc.Backend.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists, "expected no prior state before this subtest's Save")

	c := credential.NewObject(id, credential.KindAPIKey)
	c.SetKey(credential.Key{Name: "api_key", Value: credential.NewSecret("v")})
	require.NoError(t, tc.Backend.Save(ctx, c))
	defer func() { _, _ = tc.Backend.Delete(ctx, id) }()

	exists, err = tc.Backend.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)
}

func testListAllIncludesSaved(t *testing.T, tc BackendTestCase) {
	t.Helper()
	ctx := context.Background()
	const id = "storetest-roundtrip"

	c := credential.NewObject(id, credential.KindAPIKey)
	c.SetKey(credential.Key{Name: "api_key", Value: credential.NewSecret("v")})
	require.NoError(t, tc.Backend.Save(ctx, c))
	defer func() { _, _ = tc.Backend.Delete(ctx, id) }()

	ids, err := tc.Backend.ListAll(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, id)
}

func testDeleteReportsPriorExistence(t *testing.T, tc BackendTestCase) {
	t.Helper()
	ctx := context.Background()
	const id = "storetest-roundtrip"

	c := credential.NewObject(id, credential.KindAPIKey)
	c.SetKey(credential.Key{Name: "api_key", Value: credential.NewSecret("v")})
	require.NoError(t, tc.Backend.Save(ctx, c))

	existed, err := tc.Backend.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, existed)

	existedAgain, err := tc.Backend.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, existedAgain)
}

// ProviderTestCase names a provider.Provider under test, seeded with a
// credential it is willing to operate on.
type ProviderTestCase struct {
	// Name identifies the provider in test output.
	Name string
	// Provider is the implementation under test.
	Provider provider.Provider
	// Seed is a credential the provider can Refresh/Validate without
	// reaching a real upstream (callers typically pre-expire a key via
	// ExpiresAt to force ShouldRefresh/Refresh to engage).
	Seed *credential.Object
}

// RunProviderContractTests runs the full provider.Provider contract suite.
func RunProviderContractTests(t *testing.T, tc ProviderTestCase) {
	t.Helper()
	require.NotNil(t, tc.Provider, "Provider cannot be nil")
	require.NotNil(t, tc.Seed, "Seed credential cannot be nil")

	t.Run("IDIsConsistent", func(t *testing.T) {
		id := tc.Provider.ID()
		assert.NotEmpty(t, id)
		assert.Equal(t, id, tc.Provider.ID())
	})

	t.Run("SupportedKindsIncludesSeedKind", func(t *testing.T) {
		kinds := tc.Provider.SupportedKinds()
		assert.NotEmpty(t, kinds)
		assert.Contains(t, kinds, tc.Seed.Kind)
	})

	t.Run("ShouldRefreshIsDeterministic", func(t *testing.T) {
		now := time.Now().UTC()
		first := tc.Provider.ShouldRefresh(tc.Seed, now)
		second := tc.Provider.ShouldRefresh(tc.Seed, now)
		assert.Equal(t, first, second)
	})

	t.Run("RefreshPreservesID", func(t *testing.T) {
		ctx := context.Background()
		refreshed, err := tc.Provider.Refresh(ctx, tc.Seed.Clone())
		if err != nil {
			// Providers with external dependencies (OAuth2, RemoteSync)
			// may legitimately fail against a seed with no live upstream;
			// the contract only binds providers that can succeed offline
			// (Static).
			t.Logf("Refresh returned error (acceptable for network-backed providers): %v", err)
			return
		}
		assert.Equal(t, tc.Seed.ID, refreshed.ID)
	})
}
