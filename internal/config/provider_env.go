package config

import (
	"context"
	"os"
)

// SecretProvider resolves secret values by key. SSMProvider serves deployed
// environments; EnvVarProvider serves local development and tests.
type SecretProvider interface {
	// GetParametersBatch returns key -> plaintext for every key it could
	// resolve.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

var (
	_ SecretProvider = (*EnvVarProvider)(nil)
	_ SecretProvider = (*SSMProvider)(nil)
)

// EnvVarProvider resolves keys as OS environment variable names. Missing keys
// are omitted from the result.
type EnvVarProvider struct{}

// NewEnvVarProvider creates a new EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch implements SecretProvider.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
