package service

import (
	"fmt"
	"os"

	"github.com/simstech/github-stats-service/model"
)

// CredentialSource resolves a profile's opaque credential reference into the
// decrypted token at call time. Implementations must never persist or log the
// returned value; this service only holds it in memory for the duration of a
// refresh.
type CredentialSource interface {
	Token(profileID string) (string, error)
}

// EnvCredentialSource resolves credential references as environment variable
// names (loaded from the process environment, optionally via a .env file).
type EnvCredentialSource struct {
	refs map[string]string
}

func NewEnvCredentialSource(profiles []model.Profile) *EnvCredentialSource {
	refs := make(map[string]string, len(profiles))

	for _, profile := range profiles {
		if profile.CredentialRef != "" {
			refs[profile.ID] = profile.CredentialRef
		}
	}

	return &EnvCredentialSource{refs: refs}
}

// Token returns the empty string (and no error) for profiles configured
// without a credential: they run against the anonymous budget
func (s *EnvCredentialSource) Token(profileID string) (string, error) {
	ref, found := s.refs[profileID]
	if !found {
		return "", nil
	}

	token := os.Getenv(ref)
	if token == "" {
		return "", fmt.Errorf("credential variable %q is not set", ref)
	}

	return token, nil
}
