package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/yujiajie1988/hive/pkg/credential"
)

// SecretsManagerClientAPI is the subset of the Secrets Manager client this
// backend depends on, narrowed for mockability in tests.
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

// AWSSecretsManagerConfig configures an AWSSecretsManagerBackend.
type AWSSecretsManagerConfig struct {
	Region string
	// Endpoint overrides the service endpoint, for LocalStack or testing.
	Endpoint string
	// AccessKeyID/SecretAccessKey, if both set, use static credentials
	// instead of the default credential chain.
	AccessKeyID     string
	SecretAccessKey string
	// Client overrides the constructed client entirely, for testing.
	Client SecretsManagerClientAPI
}

// AWSSecretsManagerBackend persists each credential as one JSON secret
// value in AWS Secrets Manager, keyed by credential id, using the same
// flatten/unflatten shape as VaultBackend.
type AWSSecretsManagerBackend struct {
	client SecretsManagerClientAPI
}

// NewAWSSecretsManagerBackend constructs a backend, loading the default AWS
// config unless cfg.Client is supplied.
func NewAWSSecretsManagerBackend(ctx context.Context, cfg AWSSecretsManagerConfig) (*AWSSecretsManagerBackend, error) {
	if cfg.Client != nil {
		return &AWSSecretsManagerBackend{client: cfg.Client}, nil
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	var clientOpts []func(*secretsmanager.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &AWSSecretsManagerBackend{client: secretsmanager.NewFromConfig(awsCfg, clientOpts...)}, nil
}

func (b *AWSSecretsManagerBackend) Writable() bool { return true }

// Save creates the secret on first write, or updates its value on
// subsequent writes (CreateSecret after ResourceExistsException falls back
// to PutSecretValue).
func (b *AWSSecretsManagerBackend) Save(ctx context.Context, c *credential.Object) error {
	payload, err := json.Marshal(flatten(c))
	if err != nil {
		return fmt.Errorf("storage: marshal credential %s: %w", c.ID, err)
	}
	secretString := string(payload)

	_, err = b.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(c.ID),
		SecretString: aws.String(secretString),
	})
	if err == nil {
		return nil
	}

	var exists *types.ResourceExistsException
	if errors.As(err, &exists) {
		_, err = b.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
			SecretId:     aws.String(c.ID),
			SecretString: aws.String(secretString),
		})
	}
	if err != nil {
		return classifyAWSError(c.ID, err)
	}
	return nil
}

// Load fetches and reconstructs the credential from its JSON secret value.
func (b *AWSSecretsManagerBackend) Load(ctx context.Context, id string) (*credential.Object, error) {
	result, err := b.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return nil, classifyAWSError(id, err)
	}
	if result.SecretString == nil {
		return nil, &credential.NotFoundError{ID: id}
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(*result.SecretString), &data); err != nil {
		return nil, &credential.ValidationFailureError{Reason: fmt.Sprintf("aws secrets manager backend: malformed secret %s: %v", id, err)}
	}
	return unflatten(id, data), nil
}

// Delete schedules deletion with no recovery window, matching the
// credential store's own immediate-delete semantics.
func (b *AWSSecretsManagerBackend) Delete(ctx context.Context, id string) (bool, error) {
	_, err := b.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(id),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, classifyAWSError(id, err)
	}
	return true, nil
}

// ListAll lists all secret names under this account/region.
func (b *AWSSecretsManagerBackend) ListAll(ctx context.Context) ([]string, error) {
	var ids []string
	var nextToken *string
	for {
		result, err := b.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{NextToken: nextToken})
		if err != nil {
			return nil, classifyAWSError("", err)
		}
		for _, s := range result.SecretList {
			if s.Name != nil {
				ids = append(ids, *s.Name)
			}
		}
		if result.NextToken == nil {
			break
		}
		nextToken = result.NextToken
	}
	return ids, nil
}

// Exists probes via GetSecretValue, treating ResourceNotFoundException as
// absence.
func (b *AWSSecretsManagerBackend) Exists(ctx context.Context, id string) (bool, error) {
	_, err := b.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err == nil {
		return true, nil
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, classifyAWSError(id, err)
}

func classifyAWSError(id string, err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return &credential.NotFoundError{ID: id}
	}
	var denied *types.InvalidRequestException
	if errors.As(err, &denied) {
		return &credential.ValidationFailureError{Reason: fmt.Sprintf("aws secrets manager backend: invalid request for %s: %v", id, err)}
	}
	return &credential.BackendUnavailableError{ID: id, Reason: err.Error()}
}

var _ Backend = (*AWSSecretsManagerBackend)(nil)
