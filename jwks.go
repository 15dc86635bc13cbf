package keyresolver

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

var _ SigningKeyResolver = (*JWKS)(nil)

// JWKS is a SigningKeyResolver backed by a JWK Set. It uses github.com/MicahParks/jwkset as the JWK Set storage and
// selects the key by the "kid" header parameter. Claims and plaintext tokens are resolved the same way.
type JWKS struct {
	ctx          context.Context
	storage      jwkset.Storage
	useWhitelist []jwkset.USE
}

// New creates a new JWKS resolver.
func New(options Options) (*JWKS, error) {
	ctx := options.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if options.Storage == nil {
		return nil, fmt.Errorf("%w: no JWK Set storage given in options", ErrResolve)
	}
	j := &JWKS{
		ctx:          ctx,
		storage:      options.Storage,
		useWhitelist: options.UseWhitelist,
	}
	return j, nil
}

// NewDefault creates a new JWKS resolver with a default JWK Set storage and options.
//
// This will launch "refresh goroutines" to automatically refresh the remote HTTP resources.
func NewDefault(urls []string) (*JWKS, error) {
	return NewDefaultCtx(context.Background(), urls)
}

// NewDefaultCtx is like NewDefault, but it uses the given context to end the "refresh goroutines".
func NewDefaultCtx(ctx context.Context, urls []string) (*JWKS, error) {
	return NewDefaultOverrideCtx(ctx, urls, Override{})
}

// NewDefaultOverrideCtx is like NewDefaultCtx, but the defaults for the remote HTTP resources can be overridden.
func NewDefaultOverrideCtx(ctx context.Context, urls []string, override Override) (*JWKS, error) {
	if override.Client == nil {
		override.Client = http.DefaultClient
	}
	if override.HTTPTimeout == 0 {
		override.HTTPTimeout = time.Minute
	}
	if override.RateLimitWaitMax == 0 {
		override.RateLimitWaitMax = time.Minute
	}
	if override.RefreshErrorHandlerFactory == nil {
		override.RefreshErrorHandlerFactory = func(u string) func(ctx context.Context, err error) {
			return func(ctx context.Context, err error) {
				slog.Default().ErrorContext(ctx, "Failed to refresh HTTP JWK Set from remote HTTP resource.",
					"error", err,
					"url", u,
				)
			}
		}
	}
	if override.RefreshInterval == 0 {
		override.RefreshInterval = time.Hour
	}
	if override.RefreshUnknownKID == nil {
		override.RefreshUnknownKID = rate.NewLimiter(rate.Every(5*time.Minute), 1)
	}

	clientOptions := jwkset.HTTPClientOptions{
		Given:             override.Given,
		HTTPURLs:          make(map[string]jwkset.Storage, len(urls)),
		RateLimitWaitMax:  override.RateLimitWaitMax,
		RefreshUnknownKID: override.RefreshUnknownKID,
	}
	for _, u := range urls {
		options := jwkset.HTTPClientStorageOptions{
			Client:              override.Client,
			Ctx:                 ctx,
			HTTPExpectedStatus:  http.StatusOK,
			HTTPMethod:          http.MethodGet,
			HTTPTimeout:         override.HTTPTimeout,
			RefreshErrorHandler: override.RefreshErrorHandlerFactory(u),
			RefreshInterval:     override.RefreshInterval,
			ValidateOptions: jwkset.JWKValidateOptions{
				SkipAll: override.ValidationSkipAll,
			},
		}
		c, err := jwkset.NewStorageFromHTTP(u, options)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client storage for %q: %w", u, errors.Join(err, ErrResolve))
		}
		clientOptions.HTTPURLs[u] = c
	}

	client, err := jwkset.NewHTTPClient(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client storage: %w", errors.Join(err, ErrResolve))
	}

	options := Options{
		Ctx:          ctx,
		Storage:      client,
		UseWhitelist: []jwkset.USE{jwkset.UseSig},
	}
	return New(options)
}

// NewJWKJSON creates a new JWKS resolver from a raw JSON message holding a single JWK.
func NewJWKJSON(raw json.RawMessage) (*JWKS, error) {
	marshalOptions := jwkset.JWKMarshalOptions{
		Private: true,
	}
	jwk, err := jwkset.NewJWKFromRawJSON(raw, marshalOptions, jwkset.JWKValidateOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: could not create JWK from raw JSON", errors.Join(err, ErrResolve))
	}
	store := jwkset.NewMemoryStorage()
	err = store.KeyWrite(context.Background(), jwk)
	if err != nil {
		return nil, fmt.Errorf("%w: could not write JWK to storage", errors.Join(err, ErrResolve))
	}
	options := Options{
		Storage: store,
	}
	return New(options)
}

// NewJWKSetJSON creates a new JWKS resolver from a raw JSON message holding a JWK Set.
func NewJWKSetJSON(raw json.RawMessage) (*JWKS, error) {
	var jwks jwkset.JWKSMarshal
	err := json.Unmarshal(raw, &jwks)
	if err != nil {
		return nil, fmt.Errorf("%w: could not unmarshal raw JWK Set JSON", errors.Join(err, ErrResolve))
	}
	store := jwkset.NewMemoryStorage()
	marshalOptions := jwkset.JWKMarshalOptions{
		Private: true,
	}
	for i, marshal := range jwks.Keys {
		jwk, err := jwkset.NewJWKFromMarshal(marshal, marshalOptions, jwkset.JWKValidateOptions{})
		if err != nil {
			return nil, fmt.Errorf("%w: could not create JWK from JWK Marshal at index %d", errors.Join(err, ErrResolve), i)
		}
		err = store.KeyWrite(context.Background(), jwk)
		if err != nil {
			return nil, fmt.Errorf("%w: could not write JWK to storage", errors.Join(err, ErrResolve))
		}
	}
	options := Options{
		Storage: store,
	}
	return New(options)
}

// Keyfunc is meant to be passed to github.com/golang-jwt/jwt/v5 as the jwt.Keyfunc.
func (j *JWKS) Keyfunc(token *jwt.Token) (any, error) {
	return j.KeyfuncCtx(j.ctx)(token)
}

// KeyfuncCtx is like Keyfunc, but the key lookup uses the given context.
func (j *JWKS) KeyfuncCtx(ctx context.Context) jwt.Keyfunc {
	return KeyfuncCtx(ctx, j)
}

// ResolveSigningKey implements SigningKeyResolver.
func (j *JWKS) ResolveSigningKey(ctx context.Context, header Header, _ jwt.Claims) (any, error) {
	return j.resolve(ctx, header)
}

// ResolveSigningKeyPlaintext implements SigningKeyResolver.
func (j *JWKS) ResolveSigningKeyPlaintext(ctx context.Context, header Header, _ string) (any, error) {
	return j.resolve(ctx, header)
}

// Storage returns the underlying JWK Set storage.
func (j *JWKS) Storage() jwkset.Storage {
	return j.storage
}

// VerificationKeySet returns every key in the storage as a jwt.VerificationKeySet.
func (j *JWKS) VerificationKeySet(ctx context.Context) (jwt.VerificationKeySet, error) {
	jwks, err := j.storage.KeyReadAll(ctx)
	if err != nil {
		return jwt.VerificationKeySet{}, fmt.Errorf("%w: could not read JWK Set from storage", errors.Join(err, ErrResolve))
	}
	set := jwt.VerificationKeySet{
		Keys: make([]jwt.VerificationKey, 0, len(jwks)),
	}
	for _, jwk := range jwks {
		set.Keys = append(set.Keys, publicKey(jwk.Key()))
	}
	return set, nil
}

func (j *JWKS) resolve(ctx context.Context, header Header) (any, error) {
	kidInter, ok := header[HeaderKID]
	if !ok {
		return nil, fmt.Errorf("%w: could not find kid in JWT header", ErrResolve)
	}
	kid, ok := kidInter.(string)
	if !ok {
		return nil, fmt.Errorf("%w: could not convert kid in JWT header to string", ErrResolve)
	}
	alg, ok := header[HeaderAlg].(string)
	if !ok {
		return nil, fmt.Errorf(`%w: the JWT header did not contain the "alg" parameter, which is required by RFC 7515 section 4.1.1`, ErrResolve)
	}

	jwk, err := j.storage.KeyRead(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read JWK from storage", errors.Join(err, ErrResolve))
	}

	if a := jwk.Marshal().ALG.String(); a != "" && a != alg {
		return nil, fmt.Errorf(`%w: JWK "alg" parameter value %q does not match token "alg" parameter value %q`, ErrResolve, a, alg)
	}
	if len(j.useWhitelist) > 0 {
		found := false
		for _, u := range j.useWhitelist {
			if jwk.Marshal().USE == u {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf(`%w: JWK "use" parameter value %q is not in whitelist`, ErrResolve, jwk.Marshal().USE)
		}
	}

	return publicKey(jwk.Key()), nil
}

func publicKey(key any) any {
	type publicKeyer interface {
		Public() crypto.PublicKey
	}
	if pk, ok := key.(publicKeyer); ok {
		return pk.Public()
	}
	return key
}
