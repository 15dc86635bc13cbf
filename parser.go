package keyresolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrPlaintext is returned when a plaintext JWS could not be parsed or verified.
var ErrPlaintext = errors.New("failed to parse plaintext JWS")

// errMethodAccepted stops the jwt.Parser once it has accepted the "alg" of a plaintext token.
var errMethodAccepted = errors.New("signing method accepted")

// emptyClaimsSegment is the base64url encoding of "{}".
const emptyClaimsSegment = "e30"

// ParserOptions are used to create a new Parser.
type ParserOptions struct {
	// JWTOptions are passed to jwt.NewParser. They control claims validation and segment decoding. Claims
	// validation options have no effect on plaintext tokens. A jwt.WithValidMethods option applies to both token
	// shapes.
	JWTOptions []jwt.ParserOption

	// ValidMethods is the list of accepted "alg" header values for both token shapes. It is appended to JWTOptions
	// as jwt.WithValidMethods. An empty list accepts every signing method registered with
	// github.com/golang-jwt/jwt/v5.
	ValidMethods []string
}

// Parser parses and verifies compact JWS, asking a SigningKeyResolver for the verification key.
type Parser struct {
	jwtParser *jwt.Parser
	resolver  SigningKeyResolver
}

// Token is a parsed JWS. Exactly one of Claims and Plaintext is populated.
type Token struct {
	Raw       string
	Header    Header
	Claims    jwt.Claims
	Plaintext string
	Signature []byte
	Valid     bool
}

// IsPlaintext reports whether the token payload was not a JSON claims set.
func (t *Token) IsPlaintext() bool {
	return t.Claims == nil
}

// NewParser creates a new Parser.
func NewParser(resolver SigningKeyResolver, options ParserOptions) (*Parser, error) {
	if resolver == nil {
		return nil, fmt.Errorf("%w: no signing key resolver given", ErrResolve)
	}
	jwtOptions := slices.Clone(options.JWTOptions)
	if len(options.ValidMethods) > 0 {
		jwtOptions = append(jwtOptions, jwt.WithValidMethods(options.ValidMethods))
	}
	p := &Parser{
		jwtParser: jwt.NewParser(jwtOptions...),
		resolver:  resolver,
	}
	return p, nil
}

// Parse parses and verifies a JWS. A payload holding a JSON object is parsed as jwt.MapClaims and validated, any
// other payload is treated as plaintext.
func (p *Parser) Parse(ctx context.Context, tokenString string) (*Token, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: token contains an invalid number of segments", jwt.ErrTokenMalformed)
	}
	payload, err := p.jwtParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: could not base64 decode payload", errors.Join(err, jwt.ErrTokenMalformed))
	}
	if !isJSONObject(payload) {
		return p.ParsePlaintext(ctx, tokenString)
	}

	parsed, err := p.ParseClaims(ctx, tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}
	t := &Token{
		Raw:       parsed.Raw,
		Header:    Header(parsed.Header),
		Claims:    parsed.Claims,
		Signature: parsed.Signature,
		Valid:     parsed.Valid,
	}
	return t, nil
}

// ParseClaims parses, verifies and validates a claims JWS. The key is resolved with ResolveSigningKey.
func (p *Parser) ParseClaims(ctx context.Context, tokenString string, claims jwt.Claims) (*jwt.Token, error) {
	return p.jwtParser.ParseWithClaims(tokenString, claims, KeyfuncCtx(ctx, p.resolver))
}

// ParsePlaintext parses and verifies a JWS whose payload is not a claims set. The key is resolved with
// ResolveSigningKeyPlaintext.
func (p *Parser) ParsePlaintext(ctx context.Context, tokenString string) (*Token, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: token contains an invalid number of segments", errors.Join(ErrPlaintext, jwt.ErrTokenMalformed))
	}

	rawHeader, err := p.jwtParser.DecodeSegment(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: could not base64 decode header", errors.Join(err, ErrPlaintext, jwt.ErrTokenMalformed))
	}
	var header Header
	err = json.Unmarshal(rawHeader, &header)
	if err != nil {
		return nil, fmt.Errorf("%w: could not JSON decode header", errors.Join(err, ErrPlaintext, jwt.ErrTokenMalformed))
	}
	payload, err := p.jwtParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: could not base64 decode payload", errors.Join(err, ErrPlaintext, jwt.ErrTokenMalformed))
	}
	signature, err := p.jwtParser.DecodeSegment(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: could not base64 decode signature", errors.Join(err, ErrPlaintext, jwt.ErrTokenMalformed))
	}

	alg := header.Algorithm()
	err = p.acceptMethod(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: plaintext token with \"alg\" %q", errors.Join(err, ErrPlaintext), alg)
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, fmt.Errorf("%w: signing method %q is unavailable", errors.Join(ErrPlaintext, jwt.ErrTokenUnverifiable), alg)
	}

	t := &Token{
		Raw:       tokenString,
		Header:    header,
		Plaintext: string(payload),
		Signature: signature,
	}

	key, err := p.resolver.ResolveSigningKeyPlaintext(ctx, header, t.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: plaintext token", errors.Join(err, ErrResolve, ErrPlaintext, jwt.ErrTokenUnverifiable))
	}
	if key == nil {
		return nil, fmt.Errorf("%w: plaintext token with \"kid\" %q and \"alg\" %q", errors.Join(ErrNoSigningKey, ErrPlaintext, jwt.ErrTokenUnverifiable), header.KeyID(), alg)
	}
	if set, ok := key.(jwt.VerificationKeySet); ok && len(set.Keys) == 0 {
		return nil, fmt.Errorf("%w: empty verification key set for plaintext token with \"kid\" %q", errors.Join(ErrNoSigningKey, ErrPlaintext, jwt.ErrTokenUnverifiable), header.KeyID())
	}

	signingString := parts[0] + "." + parts[1]
	err = verify(method, signingString, signature, key)
	if err != nil {
		return nil, fmt.Errorf("%w: plaintext token", errors.Join(err, ErrPlaintext, jwt.ErrTokenSignatureInvalid))
	}
	t.Valid = true

	return t, nil
}

// acceptMethod runs the header segment through the jwt.Parser with an empty claims set, so its valid methods are
// enforced for plaintext tokens exactly as for claims tokens. The jwt.Parser checks the method before calling the
// jwt.Keyfunc, so reaching it means the method was accepted.
func (p *Parser) acceptMethod(headerSegment string) error {
	accepted := false
	_, err := p.jwtParser.ParseWithClaims(headerSegment+"."+emptyClaimsSegment+".", jwt.MapClaims{}, func(*jwt.Token) (any, error) {
		accepted = true
		return nil, errMethodAccepted
	})
	if accepted {
		return nil
	}
	return err
}

// verify mirrors the key set handling of jwt.Parser: a jwt.VerificationKeySet succeeds if any of its keys verifies.
// The set must not be empty.
func verify(method jwt.SigningMethod, signingString string, signature []byte, key any) error {
	set, ok := key.(jwt.VerificationKeySet)
	if !ok {
		return method.Verify(signingString, signature, key)
	}
	var errs []error
	for _, k := range set.Keys {
		err := method.Verify(signingString, signature, k)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func isJSONObject(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
