// Package token decodes OAuth identity tokens (compact JWS) into the claims
// and byte ranges the circuit consumes. Parsing never verifies; see
// VerifySignature.
package token

import (
	"crypto/rsa"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

var (
	// ErrMalformedToken is returned when the token is not a compact JWS with JSON parts.
	ErrMalformedToken = errors.New("malformed identity token")
	// ErrInvalidSignature is returned when the RS256 signature does not verify.
	ErrInvalidSignature = errors.New("invalid token signature")
)

// IdentityToken is an immutable decoded identity token.
type IdentityToken struct {
	Raw        string
	HeaderB64  string
	PayloadB64 string
	// SignedData is HeaderB64 + "." + PayloadB64, the bytes covered by the signature.
	SignedData string
	Signature  []byte
	// Payload is the decoded claims JSON.
	Payload []byte

	Algorithm string
	KeyID     string

	Issuer       string
	Audience     []string
	Subject      string
	Email        string
	HostedDomain string
	Nonce        string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

var parser = jwt.NewParser(jwt.WithJSONNumber())

// Parse decodes raw without checking the signature or the time claims.
func Parse(raw string) (*IdentityToken, error) {
	raw = strings.TrimSpace(raw)
	claims := jwt.MapClaims{}
	t, parts, err := parser.ParseUnverified(raw, claims)
	if err != nil {
		return nil, malformed(err)
	}
	if len(parts) != 3 {
		return nil, malformed(errors.Errorf("expected 3 parts, got %d", len(parts)))
	}

	tok := &IdentityToken{
		Raw:        raw,
		HeaderB64:  parts[0],
		PayloadB64: parts[1],
		SignedData: parts[0] + "." + parts[1],
	}
	if tok.Signature, err = parser.DecodeSegment(parts[2]); err != nil {
		return nil, malformed(errors.Wrap(err, "signature"))
	}
	if tok.Payload, err = parser.DecodeSegment(parts[1]); err != nil {
		return nil, malformed(errors.Wrap(err, "payload"))
	}

	tok.Algorithm, _ = t.Header["alg"].(string)
	tok.KeyID, _ = t.Header["kid"].(string)

	if tok.Issuer, err = claims.GetIssuer(); err != nil {
		return nil, malformed(err)
	}
	if tok.Subject, err = claims.GetSubject(); err != nil {
		return nil, malformed(err)
	}
	aud, err := claims.GetAudience()
	if err != nil {
		return nil, malformed(err)
	}
	tok.Audience = aud

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, malformed(err)
	}
	if iat != nil {
		tok.IssuedAt = iat.Time
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, malformed(err)
	}
	if exp != nil {
		tok.ExpiresAt = exp.Time
	}

	tok.Email, _ = claims["email"].(string)
	tok.HostedDomain, _ = claims["hd"].(string)
	tok.Nonce = claimString(claims["nonce"])

	return tok, nil
}

// Domain returns the hosted domain claim, or the domain of the email claim.
func (t *IdentityToken) Domain() string {
	if t.HostedDomain != "" {
		return t.HostedDomain
	}
	if i := strings.LastIndexByte(t.Email, '@'); i >= 0 {
		return t.Email[i+1:]
	}
	return ""
}

// VerifySignature checks the token signature with pub using the header algorithm.
func (t *IdentityToken) VerifySignature(pub *rsa.PublicKey) error {
	method := jwt.GetSigningMethod(t.Algorithm)
	if method == nil {
		return errors.Wrapf(ErrInvalidSignature, "unknown algorithm %q", t.Algorithm)
	}
	if err := method.Verify(t.SignedData, t.Signature, pub); err != nil {
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}
	return nil
}

// claimString renders string and numeric claims without losing precision.
func claimString(v interface{}) string {
	switch c := v.(type) {
	case string:
		return c
	case json.Number:
		return c.String()
	default:
		return ""
	}
}

func malformed(err error) error {
	return types.NewError(types.KindInput, "parse token", errors.Wrap(ErrMalformedToken, err.Error()))
}
