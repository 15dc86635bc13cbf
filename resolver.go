package keyresolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrResolve is returned when a signing key could not be resolved.
	ErrResolve = errors.New("failed to resolve signing key")
	// ErrKeyBytesAlgorithm is returned when raw key bytes were resolved for a token whose "alg" is not an HMAC
	// algorithm. Asymmetric keys must be returned by overriding the key operations instead.
	ErrKeyBytesAlgorithm = errors.New("key bytes can only be used with HMAC algorithms")
	// ErrNoSigningKey is returned when a resolver did not supply a key for the token.
	ErrNoSigningKey = errors.New("no signing key resolved for token")
)

// SigningKeyResolver supplies the key used to verify the signature of a JWS. Which method is called depends on the
// shape of the JWS payload: a JSON claims set or an arbitrary plaintext.
//
// A nil key with a nil error means the resolver has no key for the token.
type SigningKeyResolver interface {
	ResolveSigningKey(ctx context.Context, header Header, claims jwt.Claims) (key any, err error)
	ResolveSigningKeyPlaintext(ctx context.Context, header Header, plaintext string) (key any, err error)
}

var (
	_ SigningKeyResolver = Adapter{}
	_ SigningKeyResolver = ResolverFunc(nil)
)

// Adapter is a SigningKeyResolver whose behavior is made of optional function fields. The zero value resolves no key
// for any token, so callers only set the fields for the token shapes they expect.
//
// When SigningKey is nil, ResolveSigningKey delegates to ResolveSigningKeyBytes and turns non-empty bytes into an
// HMAC key. SigningKeyPlaintext and SigningKeyBytesPlaintext work the same way for plaintext tokens. Key bytes cannot
// be used for RSA, ECDSA or EdDSA tokens: set SigningKey or SigningKeyPlaintext for those.
type Adapter struct {
	SigningKey               func(ctx context.Context, header Header, claims jwt.Claims) (any, error)
	SigningKeyPlaintext      func(ctx context.Context, header Header, plaintext string) (any, error)
	SigningKeyBytes          func(ctx context.Context, header Header, claims jwt.Claims) ([]byte, error)
	SigningKeyBytesPlaintext func(ctx context.Context, header Header, plaintext string) ([]byte, error)
}

// ResolveSigningKey implements SigningKeyResolver for claims tokens.
func (a Adapter) ResolveSigningKey(ctx context.Context, header Header, claims jwt.Claims) (any, error) {
	if a.SigningKey != nil {
		return a.SigningKey(ctx, header, claims)
	}
	keyBytes, err := a.ResolveSigningKeyBytes(ctx, header, claims)
	if err != nil {
		return nil, err
	}
	return hmacKey(header, keyBytes)
}

// ResolveSigningKeyPlaintext implements SigningKeyResolver for plaintext tokens.
func (a Adapter) ResolveSigningKeyPlaintext(ctx context.Context, header Header, plaintext string) (any, error) {
	if a.SigningKeyPlaintext != nil {
		return a.SigningKeyPlaintext(ctx, header, plaintext)
	}
	keyBytes, err := a.ResolveSigningKeyBytesPlaintext(ctx, header, plaintext)
	if err != nil {
		return nil, err
	}
	return hmacKey(header, keyBytes)
}

// ResolveSigningKeyBytes returns the raw key material for a claims token. It returns an empty slice unless
// SigningKeyBytes is set.
func (a Adapter) ResolveSigningKeyBytes(ctx context.Context, header Header, claims jwt.Claims) ([]byte, error) {
	if a.SigningKeyBytes != nil {
		return a.SigningKeyBytes(ctx, header, claims)
	}
	return []byte{}, nil
}

// ResolveSigningKeyBytesPlaintext returns the raw key material for a plaintext token. It returns an empty slice
// unless SigningKeyBytesPlaintext is set.
func (a Adapter) ResolveSigningKeyBytesPlaintext(ctx context.Context, header Header, plaintext string) ([]byte, error) {
	if a.SigningKeyBytesPlaintext != nil {
		return a.SigningKeyBytesPlaintext(ctx, header, plaintext)
	}
	return []byte{}, nil
}

func hmacKey(header Header, keyBytes []byte) (any, error) {
	if len(keyBytes) == 0 {
		return nil, nil
	}
	alg := header.Algorithm()
	if _, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("%w: token \"alg\" header parameter is %q", ErrKeyBytesAlgorithm, alg)
	}
	return keyBytes, nil
}

// ResolverFunc is a SigningKeyResolver that uses the same function for both claims and plaintext tokens. The
// function only sees the header.
type ResolverFunc func(ctx context.Context, header Header) (any, error)

// ResolveSigningKey implements SigningKeyResolver.
func (f ResolverFunc) ResolveSigningKey(ctx context.Context, header Header, _ jwt.Claims) (any, error) {
	return f(ctx, header)
}

// ResolveSigningKeyPlaintext implements SigningKeyResolver.
func (f ResolverFunc) ResolveSigningKeyPlaintext(ctx context.Context, header Header, _ string) (any, error) {
	return f(ctx, header)
}

type chain []SigningKeyResolver

// Chain creates a SigningKeyResolver that asks each resolver in order and returns the first key found. Errors from
// earlier resolvers are only returned when no later resolver supplies a key.
func Chain(resolvers ...SigningKeyResolver) SigningKeyResolver {
	c := make(chain, 0, len(resolvers))
	for _, r := range resolvers {
		if r != nil {
			c = append(c, r)
		}
	}
	return c
}

func (c chain) ResolveSigningKey(ctx context.Context, header Header, claims jwt.Claims) (any, error) {
	return c.first(func(r SigningKeyResolver) (any, error) {
		return r.ResolveSigningKey(ctx, header, claims)
	})
}

func (c chain) ResolveSigningKeyPlaintext(ctx context.Context, header Header, plaintext string) (any, error) {
	return c.first(func(r SigningKeyResolver) (any, error) {
		return r.ResolveSigningKeyPlaintext(ctx, header, plaintext)
	})
}

func (c chain) first(resolve func(r SigningKeyResolver) (any, error)) (any, error) {
	var errs []error
	for _, r := range c {
		key, err := resolve(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if key != nil {
			return key, nil
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}
