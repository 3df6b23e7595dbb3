package runtime

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mindburn-labs/doccore/pkg/state"
	"github.com/mindburn-labs/doccore/pkg/transform"
)

// Claims are the JWT claims an AuthMiddleware extracts before annotating a
// transaction's meta with the caller's identity.
type Claims struct {
	jwt.RegisteredClaims
	ActorID string `json:"actor_id"`
}

// KeyFunc resolves the signing key for a token, e.g. from a JWKS cache.
type KeyFunc func(*jwt.Token) (any, error)

// AuthMiddleware validates a bearer token carried in tx.Meta["bearer_token"]
// and, on success, sets tx.Meta["actor"] to the token's actor_id claim so it
// survives into PersistedEvent.actor (spec.md §6.1). Fails closed: a
// missing or invalid token aborts the dispatch.
type AuthMiddleware struct {
	KeyFunc KeyFunc
}

func (m *AuthMiddleware) Name() string { return "auth" }

func (m *AuthMiddleware) BeforeDispatch(ctx context.Context, tx *transform.Transaction) error {
	raw, ok := tx.Meta["bearer_token"]
	if !ok {
		return fmt.Errorf("missing bearer token")
	}
	tokenStr, ok := raw.(string)
	if !ok {
		return fmt.Errorf("bearer token meta must be a string")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, m.KeyFunc)
	if err != nil {
		return fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	tx.Meta["actor"] = claims.ActorID
	return nil
}

func (m *AuthMiddleware) AfterDispatch(ctx context.Context, st *state.State, txs []*transform.Transaction) (*transform.Transaction, error) {
	return nil, nil
}
