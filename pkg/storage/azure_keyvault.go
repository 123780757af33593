package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/yujiajie1988/hive/pkg/credential"
)

// AzureKeyVaultClientAPI is the subset of the azsecrets client this backend
// depends on. List and delete are excluded — the real SDK returns a pager
// and a long-running-operation poller respectively, both impractical to
// mock, so Delete/ListAll type-assert down to the concrete client.
type AzureKeyVaultClientAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
}

// AzureKeyVaultConfig configures an AzureKeyVaultBackend.
type AzureKeyVaultConfig struct {
	VaultURL           string
	TenantID           string
	ClientID           string
	ClientSecret       string
	UseManagedIdentity bool
	// Client overrides the constructed client entirely, for testing.
	Client AzureKeyVaultClientAPI
}

// AzureKeyVaultBackend persists each credential as one JSON secret value in
// Azure Key Vault, keyed by credential id, using the vault-shaped
// flatten/unflatten helpers shared with VaultBackend.
type AzureKeyVaultBackend struct {
	client AzureKeyVaultClientAPI
}

// NewAzureKeyVaultBackend constructs a backend. Credential resolution order
// mirrors the teacher's Azure provider: client secret if ClientID/TenantID/
// ClientSecret are all set, else managed identity if requested, else
// azidentity's default credential chain.
func NewAzureKeyVaultBackend(cfg AzureKeyVaultConfig) (*AzureKeyVaultBackend, error) {
	if cfg.Client != nil {
		return &AzureKeyVaultBackend{client: cfg.Client}, nil
	}
	if cfg.VaultURL == "" {
		return nil, fmt.Errorf("storage: azure key vault URL is required")
	}

	var cred azcore.TokenCredential
	var err error
	switch {
	case cfg.TenantID != "" && cfg.ClientID != "" && cfg.ClientSecret != "":
		cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	case cfg.UseManagedIdentity:
		cred, err = azidentity.NewManagedIdentityCredential(nil)
	default:
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: azure credential: %w", err)
	}

	client, err := azsecrets.NewClient(cfg.VaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: azure key vault client: %w", err)
	}
	return &AzureKeyVaultBackend{client: client}, nil
}

func (b *AzureKeyVaultBackend) Writable() bool { return true }

// Save writes the flattened credential as a new secret version. Key Vault
// secret names may not contain underscores; credential ids are expected to
// already satisfy that (validated at the call site, same as for the other
// backends).
func (b *AzureKeyVaultBackend) Save(ctx context.Context, c *credential.Object) error {
	payload, err := json.Marshal(flatten(c))
	if err != nil {
		return fmt.Errorf("storage: marshal credential %s: %w", c.ID, err)
	}
	value := string(payload)

	_, err = b.client.SetSecret(ctx, c.ID, azsecrets.SetSecretParameters{Value: &value}, nil)
	if err != nil {
		return classifyAzureError(c.ID, err)
	}
	return nil
}

// Load fetches the latest version and reconstructs the credential.
func (b *AzureKeyVaultBackend) Load(ctx context.Context, id string) (*credential.Object, error) {
	resp, err := b.client.GetSecret(ctx, id, "", nil)
	if err != nil {
		return nil, classifyAzureError(id, err)
	}
	if resp.Value == nil {
		return nil, &credential.NotFoundError{ID: id}
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(*resp.Value), &data); err != nil {
		return nil, &credential.ValidationFailureError{Reason: fmt.Sprintf("azure key vault backend: malformed secret %s: %v", id, err)}
	}
	return unflatten(id, data), nil
}

// Delete requires the concrete *azsecrets.Client (NewListSecretPropertiesPager
// returns a pager not expressible in AzureKeyVaultClientAPI, and this keeps
// Delete/ListAll consistent).
func (b *AzureKeyVaultBackend) Delete(ctx context.Context, id string) (bool, error) {
	real, ok := b.client.(*azsecrets.Client)
	if !ok {
		return false, &credential.BackendUnavailableError{ID: id, Reason: "azure key vault backend: delete requires the real client"}
	}

	existed, err := b.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}

	if _, err := real.DeleteSecret(ctx, id, nil); err != nil {
		return false, classifyAzureError(id, err)
	}
	return true, nil
}

// ListAll requires the concrete *azsecrets.Client (NewListSecretPropertiesPager
// returns a pager type not expressible in AzureKeyVaultClientAPI).
func (b *AzureKeyVaultBackend) ListAll(ctx context.Context) ([]string, error) {
	real, ok := b.client.(*azsecrets.Client)
	if !ok {
		return nil, &credential.BackendUnavailableError{Reason: "azure key vault backend: list requires the real client"}
	}

	var ids []string
	pager := real.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classifyAzureError("", err)
		}
		for _, item := range page.Value {
			if item.ID != nil {
				ids = append(ids, item.ID.Name())
			}
		}
	}
	return ids, nil
}

// Exists probes via GetSecret.
func (b *AzureKeyVaultBackend) Exists(ctx context.Context, id string) (bool, error) {
	_, err := b.client.GetSecret(ctx, id, "", nil)
	if err == nil {
		return true, nil
	}
	if isAzureNotFound(err) {
		return false, nil
	}
	return false, classifyAzureError(id, err)
}

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

func classifyAzureError(id string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 404:
			return &credential.NotFoundError{ID: id}
		case 401, 403:
			return &credential.ValidationFailureError{Reason: fmt.Sprintf("azure key vault backend: access denied for %s", id)}
		}
	}
	return &credential.BackendUnavailableError{ID: id, Reason: err.Error()}
}

var _ Backend = (*AzureKeyVaultBackend)(nil)
