package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// secretsManagerAPI — часть клиента Secrets Manager, которая нужна воркеру.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerStore читает секреты из AWS Secrets Manager.
type SecretsManagerStore struct {
	client secretsManagerAPI
}

func NewSecretsManagerStore(client secretsManagerAPI) *SecretsManagerStore {
	return &SecretsManagerStore{client: client}
}

// NewSecretsManagerStoreFromConfig создаёт клиент из стандартной цепочки настроек AWS SDK.
func NewSecretsManagerStoreFromConfig(cfg aws.Config) *SecretsManagerStore {
	return NewSecretsManagerStore(secretsmanager.NewFromConfig(cfg))
}

// GetSecretString возвращает строковое значение секрета по идентификатору.
func (s *SecretsManagerStore) GetSecretString(ctx context.Context, secretID string) (string, error) {
	const op = "SecretsManagerStore.GetSecretString"

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", e.Wrap(op, fmt.Errorf("%w: %s", e.ErrSecretNotFound, secretID))
		}
		return "", e.Wrap(op, err)
	}

	switch {
	case out.SecretString != nil:
		return *out.SecretString, nil
	case len(out.SecretBinary) > 0:
		return string(out.SecretBinary), nil
	default:
		return "", e.Wrap(op, fmt.Errorf("%w: secret %s has no value", e.ErrInvalidSecret, secretID))
	}
}

// EnvStore берёт секрет из переменной окружения с именем secretID.
// Используется для локального запуска без AWS.
type EnvStore struct {
	lookup func(string) (string, bool)
}

func NewEnvStore() *EnvStore {
	return &EnvStore{lookup: os.LookupEnv}
}

func (s *EnvStore) GetSecretString(_ context.Context, secretID string) (string, error) {
	const op = "EnvStore.GetSecretString"

	value, ok := s.lookup(secretID)
	if !ok || value == "" {
		return "", e.Wrap(op, fmt.Errorf("%w: %s", e.ErrSecretNotFound, secretID))
	}

	return value, nil
}
