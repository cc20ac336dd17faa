package types

import (
	"math/big"
	"sort"

	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/internal/field"
)

// Circuit input slots. Bounded vectors are split into .storage and .len.
const (
	SlotData                  = "data.storage"
	SlotDataLen               = "data.len"
	SlotPartialData           = "partial_data.storage"
	SlotPartialDataLen        = "partial_data.len"
	SlotPartialHash           = "partial_hash"
	SlotFullDataLength        = "full_data_length"
	SlotBase64DecodeOffset    = "base64_decode_offset"
	SlotModulusLimbs          = "jwt_pubkey_modulus_limbs"
	SlotRedcParamsLimbs       = "jwt_pubkey_redc_params_limbs"
	SlotSignatureLimbs        = "jwt_signature_limbs"
	SlotDomain                = "domain.storage"
	SlotDomainLen             = "domain.len"
	SlotEphemeralPubkey       = "ephemeral_pubkey"
	SlotEphemeralPubkeySalt   = "ephemeral_pubkey_salt"
	SlotEphemeralPubkeyExpiry = "ephemeral_pubkey_expiry"
)

// ErrMissingSlot is returned when a required circuit input is absent.
var ErrMissingSlot = errors.New("missing circuit input")

// CircuitInputs maps a named slot to one or more decimal field elements.
type CircuitInputs map[string][]string

// Keys returns the slot names in sorted order.
func (c CircuitInputs) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether slot is present.
func (c CircuitInputs) Has(slot string) bool {
	_, ok := c[slot]
	return ok
}

// Ints parses every element of slot.
func (c CircuitInputs) Ints(slot string) ([]*big.Int, error) {
	v, ok := c[slot]
	if !ok {
		return nil, errors.Wrap(ErrMissingSlot, slot)
	}
	out, err := field.ParseBigInts(v)
	if err != nil {
		return nil, errors.WithMessage(err, slot)
	}
	return out, nil
}

// Int parses a single-element slot.
func (c CircuitInputs) Int(slot string) (*big.Int, error) {
	v, err := c.Ints(slot)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, errors.Errorf("%s: expected 1 element, got %d", slot, len(v))
	}
	return v[0], nil
}

// Bytes reads a slot whose elements are bytes.
func (c CircuitInputs) Bytes(slot string) ([]byte, error) {
	v, err := c.Ints(slot)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	for i, b := range v {
		if !b.IsUint64() || b.Uint64() > 0xff {
			return nil, errors.Errorf("%s[%d]: %s is not a byte", slot, i, b)
		}
		out[i] = byte(b.Uint64())
	}
	return out, nil
}

// SetInt stores a single value.
func (c CircuitInputs) SetInt(slot string, v *big.Int) {
	c[slot] = []string{v.String()}
}

// SetUint stores a single small value.
func (c CircuitInputs) SetUint(slot string, v uint64) {
	c[slot] = []string{new(big.Int).SetUint64(v).String()}
}

// SetInts stores a vector of values.
func (c CircuitInputs) SetInts(slot string, vs []*big.Int) {
	c[slot] = field.Strings(vs)
}

// SetBytes stores bytes zero-padded to size.
func (c CircuitInputs) SetBytes(slot string, b []byte, size int) {
	out := make([]string, size)
	for i := range out {
		if i < len(b) {
			out[i] = new(big.Int).SetUint64(uint64(b[i])).String()
		} else {
			out[i] = "0"
		}
	}
	c[slot] = out
}
