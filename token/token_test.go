package token

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zkjwt/go-zkjwt-auth/internal/testutil"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

// Google token and key captured for the pse.dev example.
const (
	googleToken   = "eyJhbGciOiJSUzI1NiIsImtpZCI6IjA3YjgwYTM2NTQyODUyNWY4YmY3Y2QwODQ2ZDc0YThlZTRlZjM2MjUiLCJ0eXAiOiJKV1QifQ.eyJpc3MiOiJodHRwczovL2FjY291bnRzLmdvb2dsZS5jb20iLCJhenAiOiIxMDA2NzAxMjkzNzQ4LTFpcm1ndTkxMHAybjd2am1vYTQ0MXJhbW02ZGNydmViLmFwcHMuZ29vZ2xldXNlcmNvbnRlbnQuY29tIiwiYXVkIjoiMTAwNjcwMTI5Mzc0OC0xaXJtZ3U5MTBwMm43dmptb2E0NDFyYW1tNmRjcnZlYi5hcHBzLmdvb2dsZXVzZXJjb250ZW50LmNvbSIsInN1YiI6IjEwODUyMjA3NzcyMTgyNjQzOTM2NCIsImhkIjoicHNlLmRldiIsImVtYWlsIjoidml2aWFuamVuZ0Bwc2UuZGV2IiwiZW1haWxfdmVyaWZpZWQiOnRydWUsIm5vbmNlIjoiNjIyNjE4NzE4OTI2NDIwNDg2NDk4MTI3MDAxMDcxODU2NTA0MzIyNDkyNjUwNjU2MjgzOTM2NTk2NDc3ODY5OTY1NDU5ODg3NTQ2IiwibmJmIjoxNzQ2MDAzNzgwLCJpYXQiOjE3NDYwMDQwODAsImV4cCI6MTc0NjAwNzY4MCwianRpIjoiZmZhNGNhMWQ1NDZlZGZlOWI1Mjc0NDY3ZTE5ODJhOTgyMTU5MjRkOSJ9.naERF4rIB5L3a6I3FBC--_b25O2P6zbymSKkXHgOy44PvZU1LLSQ5ORzxHT93YIpbSzx5eF_FAMuXeN9uwLPrpFRw5Zlt9RlrbfQVNHZj1izHxj0IEYBudGESMRKjef7vfvtsYm_s_iHwE5M6H9UATi9xJw4U34iVn664xZFxhtdqbvCXW-YrjNliNK7dSEKAdHgi4MxiASlHXishGVwmFwe116c3HfEcyAJMxv9pGZEhmh4IZ7jVuwiUFEjroZ7svpGLiNx1grEnqGCJa8gcHEI4t1Lpip9d9CMuEctudLiH0Bk_bFofV-s-VvEOdFfEW8WYdE_YhKS0G9qYnevlQ"
	googleModulus = "03Cww27F2O7JxB5Ji9iT9szfKZ4MK-iPzVpQkdLjCuGKfpjaCVAz9zIQ0-7gbZ-8cJRaSLfByWTGMIHRYiX2efdjz1Z9jck0DK9W3mapFrBPvM7AlRni4lPlwUigDd8zxAMDCheqyK3vCOLFW-1xYHt_YGwv8b0dP7rjujarEYlWjeppO_QMNtXdKdT9eZtBEcj_9ms9W0aLdCFNR5AAR3y0kLkKR1H4DW7vncB46rqCJLenhlCbcW0MZ3asqcjqBQ2t9QMRnY83Zf_pNEsCcXlKp4uOQqEvzjAc9ZSr2sOmd_ESZ_3jMlNkCZ4J41TuG-My5illFcW5LajSKvxD3w"
)

func TestParseGoogleToken(t *testing.T) {
	tok, err := Parse(googleToken)
	require.NoError(t, err)

	require.Equal(t, "RS256", tok.Algorithm)
	require.Equal(t, "07b80a365428525f8bf7cd0846d74a8ee4ef3625", tok.KeyID)
	require.Equal(t, "https://accounts.google.com", tok.Issuer)
	require.Equal(t, "108522077721826439364", tok.Subject)
	require.Equal(t, []string{"1006701293748-1irmgu910p2n7vjmoa441ramm6dcrveb.apps.googleusercontent.com"}, tok.Audience)
	require.Equal(t, "pse.dev", tok.Domain())
	require.Equal(t, "622618718926420486498127001071856504322492650656283936596477869965459887546", tok.Nonce)
	require.Equal(t, int64(1746004080), tok.IssuedAt.Unix())
	require.Equal(t, int64(1746007680), tok.ExpiresAt.Unix())
	require.Len(t, tok.Signature, 256)
	require.True(t, strings.HasPrefix(string(tok.Payload), `{"iss":"https://accounts.google.com"`))
	require.Equal(t, googleToken, tok.SignedData+"."+strings.Split(googleToken, ".")[2])

	n, err := base64.RawURLEncoding.DecodeString(googleModulus)
	require.NoError(t, err)
	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: 65537}
	require.NoError(t, tok.VerifySignature(pub))
}

func TestParseSignedToken(t *testing.T) {
	iss := testutil.NewIssuer(t, "https://issuer.example", "kid-1")

	claims := iss.Claims("example.org", "42")
	delete(claims, "hd")
	raw := iss.Sign(t, claims)

	tok, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "kid-1", tok.KeyID)
	require.Equal(t, "example.org", tok.Domain())
	require.Equal(t, "42", tok.Nonce)
	require.NoError(t, tok.VerifySignature(&iss.Key.PublicKey))

	wrong := &rsa.PublicKey{N: new(big.Int).Add(iss.Key.N, big.NewInt(2)), E: iss.Key.E}
	require.ErrorIs(t, tok.VerifySignature(wrong), ErrInvalidSignature)
}

func TestParseNumericNonceKeepsPrecision(t *testing.T) {
	iss := testutil.NewIssuer(t, "https://issuer.example", "kid-1")
	claims := iss.Claims("example.org", "")
	const nonce = "17302102366996071265028731047581517700208166805377449770193522591062772282670"
	claims["nonce"] = json.Number(nonce)

	tok, err := Parse(iss.Sign(t, claims))
	require.NoError(t, err)
	require.Equal(t, nonce, tok.Nonce)
}

func TestParseMalformed(t *testing.T) {
	tests := map[string]string{
		"empty":         "",
		"two parts":     "eyJhbGciOiJSUzI1NiJ9.eyJpc3MiOiJ4In0",
		"bad header":    "!!!.eyJpc3MiOiJ4In0.c2ln",
		"bad signature": "eyJhbGciOiJSUzI1NiJ9.eyJpc3MiOiJ4In0.***",
		"iss not text":  "eyJhbGciOiJSUzI1NiJ9.eyJpc3MiOjF9.c2ln",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(raw)
			require.ErrorIs(t, err, ErrMalformedToken)
			require.Equal(t, types.KindInput, types.KindOf(err))
		})
	}
}

func TestVerifySignatureUnknownAlgorithm(t *testing.T) {
	tok := &IdentityToken{Algorithm: "none"}
	require.ErrorIs(t, tok.VerifySignature(nil), ErrInvalidSignature)
}
