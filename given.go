package keyresolver

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/MicahParks/jwkset"
)

// GivenKey is a cryptographic key known ahead of time, not fetched from a remote JWK Set.
type GivenKey struct {
	algorithm jwkset.ALG
	inter     any
}

// GivenKeyOptions represents the configuration options for a GivenKey.
type GivenKeyOptions struct {
	// Algorithm is the "alg" the key may be used with. If it is not empty, tokens with a different "alg" header
	// parameter are rejected.
	Algorithm string
}

// NewGivenECDSA creates a new GivenKey given an ECDSA public key.
func NewGivenECDSA(key *ecdsa.PublicKey, options GivenKeyOptions) GivenKey {
	return GivenKey{
		algorithm: jwkset.ALG(options.Algorithm),
		inter:     key,
	}
}

// NewGivenEdDSA creates a new GivenKey given an EdDSA public key.
func NewGivenEdDSA(key ed25519.PublicKey, options GivenKeyOptions) GivenKey {
	return GivenKey{
		algorithm: jwkset.ALG(options.Algorithm),
		inter:     key,
	}
}

// NewGivenHMAC creates a new GivenKey given an HMAC key in a byte slice.
func NewGivenHMAC(key []byte, options GivenKeyOptions) GivenKey {
	return GivenKey{
		algorithm: jwkset.ALG(options.Algorithm),
		inter:     key,
	}
}

// NewGivenRSA creates a new GivenKey given an RSA public key.
func NewGivenRSA(key *rsa.PublicKey, options GivenKeyOptions) GivenKey {
	return GivenKey{
		algorithm: jwkset.ALG(options.Algorithm),
		inter:     key,
	}
}

// NewGiven creates a JWKS resolver from a map of Key IDs to given keys. The keys are kept in memory.
func NewGiven(ctx context.Context, givenKeys map[string]GivenKey) (*JWKS, error) {
	store := jwkset.NewMemoryStorage()
	err := AddGiven(ctx, store, givenKeys)
	if err != nil {
		return nil, err
	}
	options := Options{
		Ctx:          ctx,
		Storage:      store,
		UseWhitelist: []jwkset.USE{jwkset.UseSig},
	}
	return New(options)
}

// AddGiven writes the given keys to the JWK Set storage. The map keys are used as the Key IDs.
func AddGiven(ctx context.Context, store jwkset.Storage, givenKeys map[string]GivenKey) error {
	for kid, key := range givenKeys {
		metadata := jwkset.JWKMetadataOptions{
			ALG: key.algorithm,
			KID: kid,
			USE: jwkset.UseSig,
		}
		marshalOptions := jwkset.JWKMarshalOptions{
			Private: true,
		}
		jwkOpts := jwkset.JWKOptions{
			Marshal:  marshalOptions,
			Metadata: metadata,
		}
		jwk, err := jwkset.NewJWKFromKey(key.inter, jwkOpts)
		if err != nil {
			return fmt.Errorf("failed to create JWK from given key %q: %w", kid, errors.Join(err, ErrResolve))
		}
		err = store.KeyWrite(ctx, jwk)
		if err != nil {
			return fmt.Errorf("failed to write given key %q to storage: %w", kid, errors.Join(err, ErrResolve))
		}
	}
	return nil
}
