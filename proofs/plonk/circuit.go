// Package plonk is a gnark PLONK backend for the proof pipeline. Its circuit
// proves knowledge of the salt that binds the public ephemeral key and expiry
// to the token nonce; the public witness is the V1 public input vector.
package plonk

import (
	"encoding/base64"
	"math/big"
	"regexp"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/scs"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/constants"
	"github.com/zkjwt/go-zkjwt-auth/internal/field"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

// ErrNonceNotVisible is returned when the nonce claim can not be read from
// the payload part given to the circuit.
var ErrNonceNotVisible = errors.New("nonce claim not visible in circuit data")

// bindingCircuit public fields are declared in public input order.
type bindingCircuit struct {
	ModulusLimbs    [constants.ModulusLimbs]frontend.Variable    `gnark:",public"`
	Domain          [constants.MaxDomainLength]frontend.Variable `gnark:",public"`
	DomainLen       frontend.Variable                            `gnark:",public"`
	EphemeralPubkey frontend.Variable                            `gnark:",public"`
	Expiry          frontend.Variable                            `gnark:",public"`

	Salt  frontend.Variable
	Nonce frontend.Variable
}

// Define declares the circuit constraints.
func (c *bindingCircuit) Define(api frontend.API) error {
	for _, l := range c.ModulusLimbs {
		api.ToBinary(l, constants.LimbBits)
	}
	for _, b := range c.Domain {
		api.ToBinary(b, 8)
	}
	api.AssertIsLessOrEqual(c.DomainLen, constants.MaxDomainLength)

	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.EphemeralPubkey, c.Salt, c.Expiry)
	api.AssertIsEqual(h.Sum(), c.Nonce)
	return nil
}

var (
	compileOnce sync.Once
	compiled    constraint.ConstraintSystem
	compileErr  error
)

// ConstraintSystem compiles the circuit once per process.
func ConstraintSystem() (constraint.ConstraintSystem, error) {
	compileOnce.Do(func() {
		compiled, compileErr = frontend.Compile(ecc.BN254.ScalarField(), scs.NewBuilder, &bindingCircuit{})
		compileErr = errors.Wrap(compileErr, "failed to compile binding circuit")
	})
	return compiled, compileErr
}

var nonceClaim = regexp.MustCompile(`"nonce"\s*:\s*"?(0x[0-9a-fA-F]+|[0-9]+)"?`)

// assignment maps circuit inputs onto the circuit. The nonce is read from the
// signed payload the builder placed in the data slots.
func assignment(in types.CircuitInputs) (*bindingCircuit, error) {
	var a bindingCircuit

	limbs, err := in.Ints(types.SlotModulusLimbs)
	if err != nil {
		return nil, err
	}
	if len(limbs) != len(a.ModulusLimbs) {
		return nil, errors.Errorf("%d modulus limbs, circuit has %d", len(limbs), len(a.ModulusLimbs))
	}
	for i, l := range limbs {
		a.ModulusLimbs[i] = l
	}

	domain, err := in.Bytes(types.SlotDomain)
	if err != nil {
		return nil, err
	}
	if len(domain) != len(a.Domain) {
		return nil, errors.Errorf("%d domain bytes, circuit has %d", len(domain), len(a.Domain))
	}
	for i, b := range domain {
		a.Domain[i] = int(b)
	}

	scalars := []struct {
		slot string
		dst  *frontend.Variable
	}{
		{types.SlotDomainLen, &a.DomainLen},
		{types.SlotEphemeralPubkey, &a.EphemeralPubkey},
		{types.SlotEphemeralPubkeyExpiry, &a.Expiry},
		{types.SlotEphemeralPubkeySalt, &a.Salt},
	}
	for _, s := range scalars {
		v, err := in.Int(s.slot)
		if err != nil {
			return nil, err
		}
		*s.dst = v
	}

	nonce, err := visibleNonce(in)
	if err != nil {
		return nil, err
	}
	a.Nonce = nonce
	return &a, nil
}

func visibleNonce(in types.CircuitInputs) (*big.Int, error) {
	dataSlot, lenSlot := types.SlotData, types.SlotDataLen
	if in.Has(types.SlotPartialData) {
		dataSlot, lenSlot = types.SlotPartialData, types.SlotPartialDataLen
	}
	data, err := in.Bytes(dataSlot)
	if err != nil {
		return nil, err
	}
	n, err := in.Int(lenSlot)
	if err != nil {
		return nil, err
	}
	offset, err := in.Int(types.SlotBase64DecodeOffset)
	if err != nil {
		return nil, err
	}
	if !n.IsInt64() || n.Int64() > int64(len(data)) || !offset.IsInt64() || offset.Int64() > n.Int64() {
		return nil, errors.New("data length or decode offset out of range")
	}

	payload, err := base64.RawURLEncoding.DecodeString(string(data[offset.Int64():n.Int64()]))
	if err != nil {
		return nil, errors.Wrap(ErrNonceNotVisible, err.Error())
	}
	m := nonceClaim.FindSubmatch(payload)
	if m == nil {
		return nil, ErrNonceNotVisible
	}
	return field.ParseElement(string(m[1]))
}
