package integration

import (
	"context"
	"os"
	"strings"

	"github.com/strandkit/strand/pkg/protocol"
)

// EnvCredentials resolves integration tokens from the environment, keyed
// STRAND_TOKEN_<PROVIDER>. Single-tenant deployments get working
// credential plumbing without a secrets service; the user ID is ignored.
type EnvCredentials struct{}

func NewEnvCredentials() *EnvCredentials { return &EnvCredentials{} }

func (c *EnvCredentials) GetValidToken(_ context.Context, _, provider string) (string, error) {
	token := os.Getenv("STRAND_TOKEN_" + strings.ToUpper(provider))
	if token == "" {
		return "", protocol.ErrTokenNotFound
	}

	return token, nil
}
