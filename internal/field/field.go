// Package field holds helpers for BN254 scalar field elements as they cross
// the prover and verifier boundary.
package field

import (
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"
)

// ErrOutOfField is returned for values outside [0, r).
var ErrOutOfField = errors.New("value is not a field element")

// Modulus returns r, the order of the BN254 scalar field.
func Modulus() *big.Int {
	return fr.Modulus()
}

// InField reports whether 0 <= v < r.
func InField(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(fr.Modulus()) < 0
}

// ParseBigInt parses a decimal or 0x-prefixed hex string.
func ParseBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	if s == "" {
		return nil, errors.New("can not parse empty string to *big.Int")
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, errors.Errorf("can not parse string to *big.Int: %s", s)
	}
	return n, nil
}

// ParseElement parses s and checks that it is a field element.
func ParseElement(s string) (*big.Int, error) {
	n, err := ParseBigInt(s)
	if err != nil {
		return nil, err
	}
	if !InField(n) {
		return nil, errors.Wrapf(ErrOutOfField, "%s", s)
	}
	return n, nil
}

// ParseBigInts converts string array to array of big integers.
func ParseBigInts(s []string) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(s))
	for i := range s {
		n, err := ParseBigInt(s[i])
		if err != nil {
			return nil, errors.WithMessagef(err, "index %d", i)
		}
		out = append(out, n)
	}
	return out, nil
}

// Strings renders values in decimal.
func Strings(vs []*big.Int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

// SplitLimbs splits a non-negative v into count little-endian limbs of bits
// each. It fails if v does not fit.
func SplitLimbs(v *big.Int, bits uint, count int) ([]*big.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, errors.New("limbs of a negative value")
	}
	if v.BitLen() > int(bits)*count {
		return nil, errors.Errorf("value of %d bits does not fit in %d limbs of %d bits", v.BitLen(), count, bits)
	}
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bits), big.NewInt(1))
	rest := new(big.Int).Set(v)
	limbs := make([]*big.Int, count)
	for i := 0; i < count; i++ {
		limbs[i] = new(big.Int).And(rest, mask)
		rest.Rsh(rest, bits)
	}
	return limbs, nil
}

// CombineLimbs is the inverse of SplitLimbs.
func CombineLimbs(limbs []*big.Int, bits uint) *big.Int {
	v := new(big.Int)
	for i := len(limbs) - 1; i >= 0; i-- {
		v.Lsh(v, bits)
		v.Or(v, limbs[i])
	}
	return v
}
