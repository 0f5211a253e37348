package domain

import (
	"context"
	"strings"
)

type credentialKey struct{}

// WithCredential returns a context carrying a request-scoped credential
func WithCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, credentialKey{}, credential)
}

// CredentialFromContext returns the request-scoped credential, if any
func CredentialFromContext(ctx context.Context) (string, bool) {
	credential, ok := ctx.Value(credentialKey{}).(string)
	return credential, ok && credential != ""
}

// SanitizeCredential trims whitespace and strips quote characters that
// sneak in when keys are pasted from shells or JSON.
func SanitizeCredential(credential string) string {
	credential = strings.TrimSpace(credential)
	credential = strings.NewReplacer(`"`, "", "'", "").Replace(credential)
	return credential
}
