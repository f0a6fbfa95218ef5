// Package auth is the boundary to the external identity system. The core
// only needs to resolve a session token to a user ID; issuing credentials
// is not its business.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/c-pro/geche"
)

const DefaultTokenExpiry = 24 * time.Hour

// Verifier resolves a session token to the user it belongs to.
type Verifier interface {
	Verify(token string) (userID string, err error)
}

// TokenService is a minimal token registry backed by a TTL cache. It
// stands in for the external identity provider so the relay runs end to
// end.
type TokenService struct {
	liveTokens geche.Geche[string, string]
}

func NewTokenService(ctx context.Context, expiry time.Duration) *TokenService {
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	return &TokenService{
		liveTokens: geche.NewMapTTLCache[string, string](ctx, expiry, time.Minute),
	}
}

// Issue mints a session token for the user.
func (ts *TokenService) Issue(userID string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.URLEncoding.EncodeToString(b)
	ts.liveTokens.Set(token, userID)
	return token, nil
}

func (ts *TokenService) Verify(token string) (string, error) {
	return ts.liveTokens.Get(token)
}

func (ts *TokenService) Revoke(token string) error {
	return ts.liveTokens.Del(token)
}
