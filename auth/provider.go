package auth

import (
	"context"
	"sync"

	"pixel-chat/contract"

	"github.com/google/uuid"
)

var _ contract.IdentityProvider = (*LocalProvider)(nil)

// LocalProvider mints anonymous identities in process.
// Used when the store is embedded rather than reached over gRPC.
type LocalProvider struct {
	issuer *Issuer

	mu       sync.RWMutex
	identity *contract.Identity
}

func NewLocalProvider(issuer *Issuer) *LocalProvider {
	return &LocalProvider{issuer: issuer}
}

func (p *LocalProvider) Current() (contract.Identity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.identity == nil {
		return contract.Identity{}, false
	}
	return *p.identity, true
}

func (p *LocalProvider) SignInAnonymously(_ context.Context) (contract.Identity, error) {
	participantID := uuid.NewString()
	token, err := p.issuer.Generate(participantID)
	if err != nil {
		return contract.Identity{}, err
	}
	identity := contract.Identity{ParticipantID: participantID, Token: token}

	p.mu.Lock()
	p.identity = &identity
	p.mu.Unlock()
	return identity, nil
}

// Ensure returns the current identity, signing in anonymously when there is none.
func Ensure(ctx context.Context, provider contract.IdentityProvider) (contract.Identity, error) {
	if identity, ok := provider.Current(); ok {
		return identity, nil
	}
	return provider.SignInAnonymously(ctx)
}
