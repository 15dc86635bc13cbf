package keyresolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix is the Redis key prefix used when RedisOptions.KeyPrefix is empty.
const DefaultRedisKeyPrefix = "jws:key:"

// RedisOptions are used to create an Adapter that reads HMAC key bytes from Redis.
type RedisOptions struct {
	// Client is the Redis client. It is required.
	Client redis.UniversalClient

	// KeyPrefix is prepended to the token "kid" to form the Redis key. Defaults to DefaultRedisKeyPrefix.
	KeyPrefix string

	// Claims enables lookups for claims tokens.
	Claims bool

	// Plaintext enables lookups for plaintext tokens.
	//
	// When neither Claims nor Plaintext is set, both are enabled.
	Plaintext bool
}

// NewRedisAdapter creates an Adapter whose key bytes operations read the secret stored under the token "kid". A
// missing Redis key resolves to no key. The operations for disabled token shapes keep their defaults.
func NewRedisAdapter(options RedisOptions) (Adapter, error) {
	if options.Client == nil {
		return Adapter{}, fmt.Errorf("%w: no Redis client given in options", ErrResolve)
	}
	if options.KeyPrefix == "" {
		options.KeyPrefix = DefaultRedisKeyPrefix
	}
	if !options.Claims && !options.Plaintext {
		options.Claims = true
		options.Plaintext = true
	}

	r := redisKeyBytes{
		client: options.Client,
		prefix: options.KeyPrefix,
	}
	var a Adapter
	if options.Claims {
		a.SigningKeyBytes = func(ctx context.Context, header Header, _ jwt.Claims) ([]byte, error) {
			return r.get(ctx, header)
		}
	}
	if options.Plaintext {
		a.SigningKeyBytesPlaintext = func(ctx context.Context, header Header, _ string) ([]byte, error) {
			return r.get(ctx, header)
		}
	}
	return a, nil
}

type redisKeyBytes struct {
	client redis.UniversalClient
	prefix string
}

func (r redisKeyBytes) get(ctx context.Context, header Header) ([]byte, error) {
	kid := header.KeyID()
	if kid == "" {
		return nil, fmt.Errorf("%w: could not find kid in JWT header", ErrResolve)
	}
	keyBytes, err := r.client.Get(ctx, r.prefix+kid).Bytes()
	if errors.Is(err, redis.Nil) {
		return []byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: could not read key bytes for kid %q from Redis", errors.Join(err, ErrResolve), kid)
	}
	return keyBytes, nil
}
