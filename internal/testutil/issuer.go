// Package testutil provides a throwaway OAuth issuer for tests.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	key     *rsa.PrivateKey
	keyErr  error
)

func sharedKey(t testing.TB) *rsa.PrivateKey {
	keyOnce.Do(func() {
		key, keyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	require.NoError(t, keyErr)
	return key
}

// Issuer signs RS256 tokens and publishes its key set.
type Issuer struct {
	URL   string
	KeyID string
	Key   *rsa.PrivateKey
}

// NewIssuer returns an issuer with a process-wide 2048-bit key.
func NewIssuer(t testing.TB, url, kid string) *Issuer {
	return &Issuer{URL: url, KeyID: kid, Key: sharedKey(t)}
}

// JWK is the public key in key set form.
func (i *Issuer) JWK() map[string]string {
	return map[string]string{
		"kty": "RSA",
		"kid": i.KeyID,
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(i.Key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(i.Key.E)).Bytes()),
	}
}

// JWKS renders the issuer key set, with extra keys appended.
func (i *Issuer) JWKS(t testing.TB, extra ...map[string]string) []byte {
	keys := append([]map[string]string{i.JWK()}, extra...)
	raw, err := json.Marshal(map[string]interface{}{"keys": keys})
	require.NoError(t, err)
	return raw
}

// Claims returns a typical Google-shaped claim set for domain and nonce.
func (i *Issuer) Claims(domain, nonce string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":            i.URL,
		"azp":            "client.apps.example.com",
		"aud":            "client.apps.example.com",
		"sub":            "108522077721826439364",
		"hd":             domain,
		"email":          "member@" + domain,
		"email_verified": true,
		"nonce":          nonce,
		"nbf":            now.Add(-5 * time.Minute).Unix(),
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"jti":            "ffa4ca1d546edfe9b5274467e1982a98215924d9",
	}
}

// Sign issues an RS256 token with the issuer kid.
func (i *Issuer) Sign(t testing.TB, claims jwt.MapClaims) string {
	return i.SignWith(t, jwt.SigningMethodRS256, claims)
}

// SignWith issues a token with another RSA method.
func (i *Issuer) SignWith(t testing.TB, method jwt.SigningMethod, claims jwt.MapClaims) string {
	tok := jwt.NewWithClaims(method, claims)
	tok.Header["kid"] = i.KeyID
	raw, err := tok.SignedString(i.Key)
	require.NoError(t, err)
	return raw
}
