package storetest_test

import (
	"testing"
	"time"

	"github.com/yujiajie1988/hive/internal/store/storetest"
	"github.com/yujiajie1988/hive/pkg/credential"
	"github.com/yujiajie1988/hive/pkg/provider"
	"github.com/yujiajie1988/hive/pkg/storage"
)

func TestEncryptedFileBackendContract(t *testing.T) {
	backend, err := storage.NewEncryptedFileBackend(storage.EncryptedFileConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("construct backend: %v", err)
	}
	storetest.RunBackendContractTests(t, storetest.BackendTestCase{Name: "encryptedfile", Backend: backend})
}

func TestEnvVarBackendContract(t *testing.T) {
	t.Setenv("STORETEST_MISSING_API_KEY", "")
	backend := storage.NewEnvVarBackend(nil)
	storetest.RunBackendContractTests(t, storetest.BackendTestCase{Name: "envvar", Backend: backend, SkipWrites: true})
}

func TestStaticProviderContract(t *testing.T) {
	seed := credential.NewObject("contract-static", credential.KindAPIKey)
	seed.SetKey(credential.Key{Name: "api_key", Value: credential.NewSecret("v")})

	storetest.RunProviderContractTests(t, storetest.ProviderTestCase{
		Name:     "static",
		Provider: provider.NewStatic("static"),
		Seed:     seed,
	})
}

func TestOAuth2ProviderContract(t *testing.T) {
	cfg := provider.OAuth2Config{
		ProviderID: "contract-oauth2",
		ClientID:   "client",
		TokenURL:   "http://127.0.0.1:1/token",
	}
	p, err := provider.NewOAuth2Provider(cfg)
	if err != nil {
		t.Fatalf("construct provider: %v", err)
	}

	past := time.Now().Add(-time.Minute)
	seed := credential.NewObject("contract-oauth2-cred", credential.KindOAuth2)
	seed.ProviderID = cfg.ProviderID
	seed.SetKey(credential.Key{Name: "access_token", Value: credential.NewSecret("stale"), ExpiresAt: &past})
	seed.SetKey(credential.Key{Name: "refresh_token", Value: credential.NewSecret("r")})

	storetest.RunProviderContractTests(t, storetest.ProviderTestCase{
		Name:     "oauth2",
		Provider: p,
		Seed:     seed,
	})
}
