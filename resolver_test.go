package keyresolver_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wundergraph/keyresolver"
)

var resolverInputs = []struct {
	name      string
	header    keyresolver.Header
	claims    jwt.Claims
	plaintext string
}{
	{
		name: "empty",
	},
	{
		name:      "HMAC",
		header:    keyresolver.Header{"alg": "HS256", "kid": testKID},
		claims:    jwt.MapClaims{"sub": "subject"},
		plaintext: "hello",
	},
	{
		name:      "RSA",
		header:    keyresolver.Header{"alg": "RS256", "kid": testKID, "typ": "JWT"},
		claims:    &jwt.RegisteredClaims{Issuer: "issuer"},
		plaintext: `{"not":"claims"`,
	},
}

func TestAdapterDefaults(t *testing.T) {
	ctx := context.Background()
	var a keyresolver.Adapter
	for _, tc := range resolverInputs {
		t.Run(tc.name, func(t *testing.T) {
			key, err := a.ResolveSigningKey(ctx, tc.header, tc.claims)
			if err != nil || key != nil {
				t.Fatalf("Expected no key and no error for claims token, got %v and %v.", key, err)
			}
			key, err = a.ResolveSigningKeyPlaintext(ctx, tc.header, tc.plaintext)
			if err != nil || key != nil {
				t.Fatalf("Expected no key and no error for plaintext token, got %v and %v.", key, err)
			}
			b, err := a.ResolveSigningKeyBytes(ctx, tc.header, tc.claims)
			if err != nil || b == nil || len(b) != 0 {
				t.Fatalf("Expected empty key bytes for claims token, got %v and %v.", b, err)
			}
			b, err = a.ResolveSigningKeyBytesPlaintext(ctx, tc.header, tc.plaintext)
			if err != nil || b == nil || len(b) != 0 {
				t.Fatalf("Expected empty key bytes for plaintext token, got %v and %v.", b, err)
			}
		})
	}
}

func TestAdapterOverrideClaimsOnly(t *testing.T) {
	ctx := context.Background()
	want := []byte("claims key")
	a := keyresolver.Adapter{
		SigningKey: func(_ context.Context, _ keyresolver.Header, _ jwt.Claims) (any, error) {
			return want, nil
		},
	}
	header := keyresolver.Header{"alg": "HS256"}

	key, err := a.ResolveSigningKey(ctx, header, jwt.MapClaims{})
	if err != nil {
		t.Fatalf("Failed to resolve claims key.\nError: %s", err)
	}
	if !bytes.Equal(key.([]byte), want) {
		t.Fatalf("Expected overridden claims key, got %v.", key)
	}

	key, err = a.ResolveSigningKeyPlaintext(ctx, header, "payload")
	if err != nil || key != nil {
		t.Fatalf("Expected plaintext operation to keep its default, got %v and %v.", key, err)
	}
	b, err := a.ResolveSigningKeyBytesPlaintext(ctx, header, "payload")
	if err != nil || len(b) != 0 {
		t.Fatalf("Expected plaintext bytes operation to keep its default, got %v and %v.", b, err)
	}
}

func TestAdapterOverridePlaintextBytesOnly(t *testing.T) {
	ctx := context.Background()
	secret := []byte("plaintext secret")
	var gotPlaintext string
	a := keyresolver.Adapter{
		SigningKeyBytesPlaintext: func(_ context.Context, _ keyresolver.Header, plaintext string) ([]byte, error) {
			gotPlaintext = plaintext
			return secret, nil
		},
	}
	header := keyresolver.Header{"alg": "HS384"}

	key, err := a.ResolveSigningKeyPlaintext(ctx, header, "payload")
	if err != nil {
		t.Fatalf("Failed to resolve plaintext key.\nError: %s", err)
	}
	if !bytes.Equal(key.([]byte), secret) {
		t.Fatalf("Expected plaintext key to come from the key bytes, got %v.", key)
	}
	if gotPlaintext != "payload" {
		t.Fatalf("Expected plaintext %q to be passed through, got %q.", "payload", gotPlaintext)
	}

	key, err = a.ResolveSigningKey(ctx, header, jwt.MapClaims{})
	if err != nil || key != nil {
		t.Fatalf("Expected claims operation to keep its default, got %v and %v.", key, err)
	}
}

func TestAdapterKeyBytesAsymmetric(t *testing.T) {
	a := keyresolver.Adapter{
		SigningKeyBytes: func(_ context.Context, _ keyresolver.Header, _ jwt.Claims) ([]byte, error) {
			return []byte("not an RSA key"), nil
		},
	}
	_, err := a.ResolveSigningKey(context.Background(), keyresolver.Header{"alg": "RS256"}, jwt.MapClaims{})
	if !errors.Is(err, keyresolver.ErrKeyBytesAlgorithm) {
		t.Fatalf("Expected ErrKeyBytesAlgorithm, got %v.", err)
	}
}

func TestAdapterKeyBytesError(t *testing.T) {
	errLookup := errors.New("lookup failed")
	a := keyresolver.Adapter{
		SigningKeyBytes: func(_ context.Context, _ keyresolver.Header, _ jwt.Claims) ([]byte, error) {
			return nil, errLookup
		},
	}
	_, err := a.ResolveSigningKey(context.Background(), keyresolver.Header{"alg": "HS256"}, jwt.MapClaims{})
	if !errors.Is(err, errLookup) {
		t.Fatalf("Expected lookup error, got %v.", err)
	}
}

func TestResolverFunc(t *testing.T) {
	ctx := context.Background()
	f := keyresolver.ResolverFunc(func(_ context.Context, header keyresolver.Header) (any, error) {
		return header.KeyID(), nil
	})
	header := keyresolver.Header{"kid": testKID}

	key, err := f.ResolveSigningKey(ctx, header, jwt.MapClaims{})
	if err != nil || key != testKID {
		t.Fatalf("Expected %q for claims token, got %v and %v.", testKID, key, err)
	}
	key, err = f.ResolveSigningKeyPlaintext(ctx, header, "payload")
	if err != nil || key != testKID {
		t.Fatalf("Expected %q for plaintext token, got %v and %v.", testKID, key, err)
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	header := keyresolver.Header{"alg": "HS256", "kid": testKID}
	errFirst := errors.New("first failed")
	failing := keyresolver.ResolverFunc(func(context.Context, keyresolver.Header) (any, error) {
		return nil, errFirst
	})
	found := keyresolver.ResolverFunc(func(context.Context, keyresolver.Header) (any, error) {
		return []byte("found"), nil
	})

	key, err := keyresolver.Chain(keyresolver.Adapter{}, failing, nil, found).ResolveSigningKey(ctx, header, jwt.MapClaims{})
	if err != nil {
		t.Fatalf("Expected a later resolver to hide earlier errors.\nError: %s", err)
	}
	if string(key.([]byte)) != "found" {
		t.Fatalf("Expected key from the last resolver, got %v.", key)
	}

	_, err = keyresolver.Chain(keyresolver.Adapter{}, failing).ResolveSigningKeyPlaintext(ctx, header, "payload")
	if !errors.Is(err, errFirst) {
		t.Fatalf("Expected error of the failing resolver, got %v.", err)
	}

	key, err = keyresolver.Chain(keyresolver.Adapter{}, keyresolver.Adapter{}).ResolveSigningKey(ctx, header, nil)
	if err != nil || key != nil {
		t.Fatalf("Expected no key and no error when no resolver has a key, got %v and %v.", key, err)
	}
}
