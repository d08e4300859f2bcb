package config

import "context"

// SecretProvider resolves secret pointers: SSM Parameter Store in deployed
// environments, plain environment variables locally.
type SecretProvider interface {
	// GetParametersBatch returns key -> plaintext for every key it could
	// resolve. Keys it cannot find are omitted and left for the caller to report.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
