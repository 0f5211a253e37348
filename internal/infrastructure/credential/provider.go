package credential

import (
	"context"

	"github.com/shelfscan/backend/internal/domain"
)

// Static serves a credential fixed at startup, usually from configuration
type Static string

// Credential returns the configured key or a ConfigurationError when empty
func (s Static) Credential(ctx context.Context) (string, error) {
	key := domain.SanitizeCredential(string(s))
	if key == "" {
		return "", domain.NewConfigurationError("API key missing", domain.ErrMissingCredential)
	}
	return key, nil
}

// Request serves the credential attached to the request context
type Request struct{}

// Credential returns the request-scoped key or a ConfigurationError
func (Request) Credential(ctx context.Context) (string, error) {
	key, ok := domain.CredentialFromContext(ctx)
	if !ok {
		return "", domain.NewConfigurationError("no request credential", domain.ErrMissingCredential)
	}
	return key, nil
}

// Chain tries providers in order and returns the first credential found
type Chain []domain.CredentialProvider

// Credential returns the first credential any provider resolves
func (c Chain) Credential(ctx context.Context) (string, error) {
	for _, provider := range c {
		if key, err := provider.Credential(ctx); err == nil {
			return key, nil
		}
	}
	return "", domain.NewConfigurationError("API key missing", domain.ErrMissingCredential)
}

// ForProvider lets a per-request key override the configured one
func ForProvider(configured string) Chain {
	return Chain{Request{}, Static(configured)}
}

// Optional never fails. It yields the wrapped provider's key when one
// resolves and an empty key otherwise, for backends that authenticate
// without an API key.
type Optional struct {
	Provider domain.CredentialProvider
}

// Credential returns the wrapped key or "" with a nil error
func (o Optional) Credential(ctx context.Context) (string, error) {
	if o.Provider == nil {
		return "", nil
	}
	key, err := o.Provider.Credential(ctx)
	if err != nil {
		return "", nil
	}
	return key, nil
}
