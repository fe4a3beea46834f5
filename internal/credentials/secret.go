package credentials

import (
	"context"
	"fmt"

	"pushbridge/internal/objects"
)

// SystemSecret reads native.secret from system.config.
// Any failure (missing object, missing or empty attribute) wraps ErrSecretUnavailable.
func SystemSecret(ctx context.Context, store objects.Store) (string, error) {
	obj, err := store.GetObject(ctx, objects.SystemConfigID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSecretUnavailable, err)
	}
	secret, ok := obj.NativeString(objects.SecretKey)
	if !ok || secret == "" {
		return "", ErrSecretUnavailable
	}
	return secret, nil
}
