package jwks

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/constants"
)

// SigningKey is an issuer RSA signing key.
type SigningKey struct {
	KeyID     string
	Modulus   *big.Int
	Exponent  int
	Algorithm string
	KeyType   string
	PublicKey *rsa.PublicKey
}

type jwkHeader struct {
	KeyID     string `json:"kid"`
	KeyType   string `json:"kty"`
	Algorithm string `json:"alg"`
	Use       string `json:"use"`
	N         string `json:"n"`
}

// ModulusFromJWK decodes the base64url "n" member of an RSA JWK. Padding is tolerated.
func ModulusFromJWK(n string) (*big.Int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(n, "="))
	if err != nil {
		return nil, errors.Wrap(ErrMalformedKey, "modulus is not base64url: "+err.Error())
	}
	m := new(big.Int).SetBytes(raw)
	if m.Sign() <= 0 {
		return nil, errors.Wrap(ErrMalformedKey, "modulus is not a positive integer")
	}
	return m, nil
}

// ParseKey parses a single RSA JWK.
func ParseKey(raw []byte) (SigningKey, error) {
	var h jwkHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return SigningKey{}, errors.Wrap(ErrMalformedKey, err.Error())
	}
	if h.KeyType != "RSA" {
		return SigningKey{}, errors.Wrapf(ErrMalformedKey, "key %s has unsupported type %q", h.KeyID, h.KeyType)
	}
	modulus, err := ModulusFromJWK(h.N)
	if err != nil {
		return SigningKey{}, errors.WithMessagef(err, "key %s", h.KeyID)
	}
	key, err := jwk.ParseKey(raw)
	if err != nil {
		return SigningKey{}, errors.Wrapf(ErrMalformedKey, "key %s: %v", h.KeyID, err)
	}
	var pub rsa.PublicKey
	if err := key.Raw(&pub); err != nil {
		return SigningKey{}, errors.Wrapf(ErrMalformedKey, "key %s: %v", h.KeyID, err)
	}
	if pub.N.Cmp(modulus) != 0 {
		return SigningKey{}, errors.Wrapf(ErrMalformedKey, "key %s: modulus mismatch", h.KeyID)
	}

	alg := h.Algorithm
	if alg == "" {
		alg = constants.SupportedAlgorithm
	}
	return SigningKey{
		KeyID:     h.KeyID,
		Modulus:   modulus,
		Exponent:  pub.E,
		Algorithm: alg,
		KeyType:   h.KeyType,
		PublicKey: &pub,
	}, nil
}

// ParseKeySet parses the signing keys of a JWKS document. Keys that fail to
// parse are reported per key id so that one bad key does not hide the others.
func ParseKeySet(raw []byte) ([]SigningKey, map[string]error, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, errors.Wrap(ErrMalformedKey, "key set: "+err.Error())
	}

	keys := make([]SigningKey, 0, len(doc.Keys))
	bad := make(map[string]error)
	for _, rk := range doc.Keys {
		var h jwkHeader
		if err := json.Unmarshal(rk, &h); err != nil {
			continue
		}
		if h.Use == "enc" {
			continue
		}
		k, err := ParseKey(rk)
		if err != nil {
			bad[h.KeyID] = err
			continue
		}
		keys = append(keys, k)
	}
	return keys, bad, nil
}
