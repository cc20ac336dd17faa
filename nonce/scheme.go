package nonce

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/pkg/errors"
)

// Scheme hashes field elements into the nonce field element.
type Scheme interface {
	Name() string
	Hash(inputs []*big.Int) (*big.Int, error)
}

var (
	// Poseidon is circomlib-compatible Poseidon over BN254.
	Poseidon Scheme = poseidonScheme{}
	// MiMC is gnark's BN254 MiMC, matching std/hash/mimc in circuits.
	MiMC Scheme = mimcScheme{}
)

// SchemeByName returns a registered scheme.
func SchemeByName(name string) (Scheme, error) {
	switch name {
	case Poseidon.Name():
		return Poseidon, nil
	case MiMC.Name():
		return MiMC, nil
	default:
		return nil, errors.Errorf("unknown nonce scheme %q", name)
	}
}

type poseidonScheme struct{}

func (poseidonScheme) Name() string { return "poseidon-bn254" }

func (poseidonScheme) Hash(inputs []*big.Int) (*big.Int, error) {
	h, err := poseidon.Hash(inputs)
	return h, errors.Wrap(err, "poseidon")
}

type mimcScheme struct{}

func (mimcScheme) Name() string { return "mimc-bn254" }

func (mimcScheme) Hash(inputs []*big.Int) (*big.Int, error) {
	h := mimc.NewMiMC()
	for _, in := range inputs {
		var e fr.Element
		e.SetBigInt(in)
		b := e.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return nil, errors.Wrap(err, "mimc")
		}
	}
	return new(big.Int).SetBytes(h.Sum(nil)), nil
}
