package keyresolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Keyfunc creates a jwt.Keyfunc for github.com/golang-jwt/jwt/v5 that asks the resolver for the key of a claims
// token.
func Keyfunc(resolver SigningKeyResolver) jwt.Keyfunc {
	return KeyfuncCtx(context.Background(), resolver)
}

// KeyfuncCtx is like Keyfunc, but the given context is passed to the resolver.
func KeyfuncCtx(ctx context.Context, resolver SigningKeyResolver) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		header := Header(token.Header)
		key, err := resolver.ResolveSigningKey(ctx, header, token.Claims)
		if err != nil {
			return nil, fmt.Errorf("%w: claims token", errors.Join(err, ErrResolve))
		}
		if key == nil {
			return nil, fmt.Errorf("%w: claims token with \"kid\" %q and \"alg\" %q", ErrNoSigningKey, header.KeyID(), header.Algorithm())
		}
		return key, nil
	}
}
