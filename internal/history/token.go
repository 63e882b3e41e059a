package history

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// EnsureAuthToken returns the local API token, generating and storing one
// on first start.
func EnsureAuthToken(ctx context.Context, repo Repository) (string, error) {
	existing, err := repo.GetConfig(ctx, ConfigKeyAuthToken)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, ConfigKeyAuthToken, token); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}
