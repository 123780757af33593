package storage

import (
	"context"
	"encoding/json"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yujiajie1988/hive/pkg/credential"
)

// GCPSecretIterator is the subset of *secretmanager.SecretIterator this
// backend depends on, narrowed for mockability in tests.
type GCPSecretIterator interface {
	Next() (*secretmanagerpb.Secret, error)
}

// GCPSecretManagerClientAPI is the subset of the Secret Manager client this
// backend depends on, narrowed for mockability (the teacher's own GCP
// provider depends on the concrete *secretmanager.Client directly; this
// backend narrows it to an interface for the same reason the AWS/Azure
// backends do).
type GCPSecretManagerClientAPI interface {
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest, opts ...gax.CallOption) error
	ListSecrets(ctx context.Context, req *secretmanagerpb.ListSecretsRequest, opts ...gax.CallOption) GCPSecretIterator
}

// GCPSecretManagerConfig configures a GCPSecretManagerBackend.
type GCPSecretManagerConfig struct {
	ProjectID             string
	ServiceAccountKeyPath string
	// Client overrides the constructed client entirely, for testing.
	Client GCPSecretManagerClientAPI
}

// realGCPClient adapts *secretmanager.Client's concrete *SecretIterator
// return type to the GCPSecretIterator interface this backend depends on.
type realGCPClient struct{ *secretmanager.Client }

func (r realGCPClient) ListSecrets(ctx context.Context, req *secretmanagerpb.ListSecretsRequest, opts ...gax.CallOption) GCPSecretIterator {
	return r.Client.ListSecrets(ctx, req, opts...)
}

// GCPSecretManagerBackend persists each credential as one JSON secret
// payload in Google Cloud Secret Manager, keyed by credential id.
type GCPSecretManagerBackend struct {
	client    GCPSecretManagerClientAPI
	projectID string
}

// NewGCPSecretManagerBackend constructs a backend against a real GCP
// project, unless cfg.Client is supplied.
func NewGCPSecretManagerBackend(ctx context.Context, cfg GCPSecretManagerConfig) (*GCPSecretManagerBackend, error) {
	if cfg.Client != nil {
		return &GCPSecretManagerBackend{client: cfg.Client, projectID: cfg.ProjectID}, nil
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("storage: gcp project id is required")
	}

	var opts []option.ClientOption
	if cfg.ServiceAccountKeyPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.ServiceAccountKeyPath))
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: gcp secret manager client: %w", err)
	}
	return &GCPSecretManagerBackend{client: realGCPClient{client}, projectID: cfg.ProjectID}, nil
}

func (b *GCPSecretManagerBackend) Writable() bool { return true }

func (b *GCPSecretManagerBackend) secretName(id string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", b.projectID, id)
}

func (b *GCPSecretManagerBackend) latestVersionName(id string) string {
	return b.secretName(id) + "/versions/latest"
}

// Save creates the secret container on first write (ignoring AlreadyExists)
// then adds a new version carrying the flattened credential payload.
func (b *GCPSecretManagerBackend) Save(ctx context.Context, c *credential.Object) error {
	payload, err := json.Marshal(flatten(c))
	if err != nil {
		return fmt.Errorf("storage: marshal credential %s: %w", c.ID, err)
	}

	_, err = b.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   fmt.Sprintf("projects/%s", b.projectID),
		SecretId: c.ID,
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{Automatic: &secretmanagerpb.Replication_Automatic{}},
			},
		},
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return classifyGCPError(c.ID, err)
	}

	_, err = b.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  b.secretName(c.ID),
		Payload: &secretmanagerpb.SecretPayload{Data: payload},
	})
	if err != nil {
		return classifyGCPError(c.ID, err)
	}
	return nil
}

// Load fetches the latest version and reconstructs the credential.
func (b *GCPSecretManagerBackend) Load(ctx context.Context, id string) (*credential.Object, error) {
	resp, err := b.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: b.latestVersionName(id)})
	if err != nil {
		return nil, classifyGCPError(id, err)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(resp.Payload.Data, &data); err != nil {
		return nil, &credential.ValidationFailureError{Reason: fmt.Sprintf("gcp secret manager backend: malformed secret %s: %v", id, err)}
	}
	return unflatten(id, data), nil
}

// Delete removes the secret container and all its versions.
func (b *GCPSecretManagerBackend) Delete(ctx context.Context, id string) (bool, error) {
	existed, err := b.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}

	if err := b.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: b.secretName(id)}); err != nil {
		return false, classifyGCPError(id, err)
	}
	return true, nil
}

// ListAll lists every secret id under the configured project.
func (b *GCPSecretManagerBackend) ListAll(ctx context.Context) ([]string, error) {
	var ids []string
	it := b.client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{Parent: fmt.Sprintf("projects/%s", b.projectID)})
	for {
		secret, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyGCPError("", err)
		}
		// secret.Name is "projects/<id>/secrets/<secret-id>"; keep only the
		// trailing segment.
		name := secret.Name
		for i := len(name) - 1; i >= 0; i-- {
			if name[i] == '/' {
				name = name[i+1:]
				break
			}
		}
		ids = append(ids, name)
	}
	return ids, nil
}

// Exists probes via AccessSecretVersion.
func (b *GCPSecretManagerBackend) Exists(ctx context.Context, id string) (bool, error) {
	_, err := b.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: b.latestVersionName(id)})
	if err == nil {
		return true, nil
	}
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	return false, classifyGCPError(id, err)
}

func classifyGCPError(id string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return &credential.NotFoundError{ID: id}
	case codes.PermissionDenied, codes.Unauthenticated:
		return &credential.ValidationFailureError{Reason: fmt.Sprintf("gcp secret manager backend: access denied for %s", id)}
	default:
		return &credential.BackendUnavailableError{ID: id, Reason: err.Error()}
	}
}

var _ Backend = (*GCPSecretManagerBackend)(nil)
