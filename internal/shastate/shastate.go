// Package shastate extracts and resumes SHA-256 chaining values so that a
// prefix of the signed data can be hashed outside the circuit.
package shastate

import (
	"encoding"
	"encoding/binary"
	"hash"

	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
)

// Marshaled digest layout shared with crypto/sha256:
// magic | 8 x uint32 state | 64 byte block | uint64 length.
const (
	magic         = "sha\x03"
	marshaledSize = len(magic) + 8*4 + sha256.BlockSize + 8
)

// State is the SHA-256 chaining value after a whole number of blocks.
type State [8]uint32

// Midstate hashes data and returns the chaining value. len(data) must be a
// multiple of the block size so that no bytes are left buffered.
func Midstate(data []byte) (State, error) {
	var st State
	if len(data)%sha256.BlockSize != 0 {
		return st, errors.Errorf("midstate of %d bytes is not block aligned", len(data))
	}
	h := sha256.New()
	if _, err := h.Write(data); err != nil {
		return st, errors.WithStack(err)
	}
	m, ok := h.(encoding.BinaryMarshaler)
	if !ok {
		return st, errors.New("sha256 digest does not support marshaling")
	}
	raw, err := m.MarshalBinary()
	if err != nil {
		return st, errors.Wrap(err, "failed to marshal sha256 digest")
	}
	if len(raw) != marshaledSize || string(raw[:len(magic)]) != magic {
		return st, errors.New("unexpected sha256 digest encoding")
	}
	for i := range st {
		st[i] = binary.BigEndian.Uint32(raw[len(magic)+4*i:])
	}
	return st, nil
}

// Resume returns a hash that continues from st after processed bytes.
func Resume(st State, processed uint64) (hash.Hash, error) {
	if processed%sha256.BlockSize != 0 {
		return nil, errors.Errorf("resume after %d bytes is not block aligned", processed)
	}
	raw := make([]byte, marshaledSize)
	copy(raw, magic)
	for i, w := range st {
		binary.BigEndian.PutUint32(raw[len(magic)+4*i:], w)
	}
	binary.BigEndian.PutUint64(raw[marshaledSize-8:], processed)

	h := sha256.New()
	u, ok := h.(encoding.BinaryUnmarshaler)
	if !ok {
		return nil, errors.New("sha256 digest does not support unmarshaling")
	}
	if err := u.UnmarshalBinary(raw); err != nil {
		return nil, errors.Wrap(err, "failed to restore sha256 digest")
	}
	return h, nil
}

// Uint64s widens the state for slots that carry it as field elements.
func (s State) Uint64s() []uint64 {
	out := make([]uint64, len(s))
	for i, w := range s {
		out[i] = uint64(w)
	}
	return out
}
