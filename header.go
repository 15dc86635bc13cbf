package keyresolver

const (
	// HeaderAlg is the JOSE header parameter for the signing algorithm.
	HeaderAlg = "alg"
	// HeaderCTY is the JOSE header parameter for the payload content type.
	HeaderCTY = "cty"
	// HeaderKID is the JOSE header parameter for the Key ID.
	HeaderKID = "kid"
	// HeaderTYP is the JOSE header parameter for the token type.
	HeaderTYP = "typ"
)

// Header is the decoded JOSE header of a JWS. It is passed to resolvers as-is and must not be modified by them.
type Header map[string]any

// Algorithm returns the "alg" header parameter.
func (h Header) Algorithm() string {
	return h.str(HeaderAlg)
}

// ContentType returns the "cty" header parameter.
func (h Header) ContentType() string {
	return h.str(HeaderCTY)
}

// KeyID returns the "kid" header parameter.
func (h Header) KeyID() string {
	return h.str(HeaderKID)
}

// Type returns the "typ" header parameter.
func (h Header) Type() string {
	return h.str(HeaderTYP)
}

func (h Header) str(name string) string {
	s, _ := h[name].(string)
	return s
}
