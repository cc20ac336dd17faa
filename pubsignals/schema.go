// Package pubsignals encodes the public input vector shared by the prover,
// the local verifier and the on-chain verifier.
package pubsignals

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/constants"
	"github.com/zkjwt/go-zkjwt-auth/internal/field"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

var (
	// ErrDomainTooLong is returned when the domain does not fit the schema.
	ErrDomainTooLong = errors.New("domain too long")
	// ErrModulusTooWide is returned when the modulus does not fit the limbs.
	ErrModulusTooWide = errors.New("modulus too wide")
	// ErrOutOfField is returned for values outside the BN254 scalar field.
	ErrOutOfField = field.ErrOutOfField
	// ErrSchemaMismatch is returned when a vector does not follow the schema.
	ErrSchemaMismatch = errors.New("public inputs do not match schema")
	// ErrEncodingMismatch is returned when two encodings of the same proof differ.
	ErrEncodingMismatch = errors.New("public input encoding mismatch")
)

// Schema fixes the order, width and padding of the public input vector.
type Schema struct {
	Version         uint8
	ModulusLimbs    int
	LimbBits        uint
	ModulusBits     int
	MaxDomainLength int
}

// SchemaV1 is [modulus limbs | domain bytes | domain len | pubkey | expiry].
var SchemaV1 = Schema{
	Version:         1,
	ModulusLimbs:    constants.ModulusLimbs,
	LimbBits:        constants.LimbBits,
	ModulusBits:     constants.ModulusBits,
	MaxDomainLength: constants.MaxDomainLength,
}

var (
	schemaRegistry = map[uint8]Schema{}
	schemaLock     = new(sync.RWMutex)
)

// RegisterSchema makes a schema available by version. Versions are never
// reused for a different layout.
func RegisterSchema(s Schema) {
	schemaLock.Lock()
	defer schemaLock.Unlock()

	schemaRegistry[s.Version] = s
}

// nolint // register supported schemas
func init() {
	RegisterSchema(SchemaV1)
}

// GetSchema returns a registered schema.
func GetSchema(version uint8) (Schema, error) {
	schemaLock.RLock()
	defer schemaLock.RUnlock()

	s, ok := schemaRegistry[version]
	if !ok {
		return Schema{}, errors.Errorf("public input schema v%d is not registered", version)
	}
	return s, nil
}

// Len is the number of words in the vector.
func (s Schema) Len() int {
	return s.ModulusLimbs + s.MaxDomainLength + 3
}

func (s Schema) domainOffset() int { return s.ModulusLimbs }
func (s Schema) lenOffset() int    { return s.ModulusLimbs + s.MaxDomainLength }
func (s Schema) pubkeyOffset() int { return s.lenOffset() + 1 }
func (s Schema) expiryOffset() int { return s.lenOffset() + 2 }

// PublicInputs is the ordered vector of 32-byte big-endian field elements.
type PublicInputs []common.Hash

// Bytes concatenates the words.
func (p PublicInputs) Bytes() []byte {
	out := make([]byte, 0, len(p)*common.HashLength)
	for _, w := range p {
		out = append(out, w.Bytes()...)
	}
	return out
}

// Strings renders every word as 0x-prefixed hex.
func (p PublicInputs) Strings() []string {
	out := make([]string, len(p))
	for i, w := range p {
		out[i] = w.Hex()
	}
	return out
}

// Ints returns the words as integers.
func (p PublicInputs) Ints() []*big.Int {
	out := make([]*big.Int, len(p))
	for i, w := range p {
		out[i] = w.Big()
	}
	return out
}

// FromInts converts field elements, e.g. the public witness of a proof.
func FromInts(vs []*big.Int) (PublicInputs, error) {
	out := make(PublicInputs, len(vs))
	for i, v := range vs {
		if !field.InField(v) {
			return nil, errors.Wrapf(ErrOutOfField, "word %d", i)
		}
		out[i] = common.BigToHash(v)
	}
	return out, nil
}

// FromStrings parses decimal or 0x hex words.
func FromStrings(vs []string) (PublicInputs, error) {
	ints, err := field.ParseBigInts(vs)
	if err != nil {
		return nil, err
	}
	return FromInts(ints)
}

// Values are the decoded public statement.
type Values struct {
	Modulus         *big.Int
	Domain          string
	EphemeralPubkey *big.Int
	Expiry          time.Time
}

// Encode encodes with SchemaV1.
func Encode(modulus *big.Int, domain string, pubkey *big.Int, expiry time.Time) (PublicInputs, error) {
	return SchemaV1.Encode(modulus, domain, pubkey, expiry)
}

// Decode decodes with SchemaV1.
func Decode(p PublicInputs) (*Values, error) {
	return SchemaV1.Decode(p)
}

// FromCircuitInputs encodes with SchemaV1.
func FromCircuitInputs(in types.CircuitInputs) (PublicInputs, error) {
	return SchemaV1.FromCircuitInputs(in)
}

// Encode lays out the public statement. Expiry is truncated to whole seconds.
func (s Schema) Encode(modulus *big.Int, domain string, pubkey *big.Int, expiry time.Time) (PublicInputs, error) {
	const op = "encode public inputs"
	if len(domain) > s.MaxDomainLength {
		return nil, types.NewError(types.KindInput, op,
			errors.Wrapf(ErrDomainTooLong, "%d bytes, max %d", len(domain), s.MaxDomainLength))
	}
	if modulus != nil && s.ModulusBits > 0 && modulus.BitLen() > s.ModulusBits {
		return nil, types.NewError(types.KindInput, op,
			errors.Wrapf(ErrModulusTooWide, "%d bits, max %d", modulus.BitLen(), s.ModulusBits))
	}
	limbs, err := field.SplitLimbs(modulus, s.LimbBits, s.ModulusLimbs)
	if err != nil {
		return nil, types.NewError(types.KindInput, op, errors.Wrap(ErrModulusTooWide, err.Error()))
	}
	if !field.InField(pubkey) {
		return nil, types.NewError(types.KindInput, op, errors.Wrap(ErrOutOfField, "ephemeral pubkey"))
	}
	exp := expiry.Unix()
	if exp < 0 {
		return nil, types.NewError(types.KindInput, op, errors.New("expiry before unix epoch"))
	}

	out := make(PublicInputs, s.Len())
	for i, l := range limbs {
		out[i] = common.BigToHash(l)
	}
	for i := 0; i < len(domain); i++ {
		out[s.domainOffset()+i] = common.BigToHash(big.NewInt(int64(domain[i])))
	}
	out[s.lenOffset()] = common.BigToHash(big.NewInt(int64(len(domain))))
	out[s.pubkeyOffset()] = common.BigToHash(pubkey)
	out[s.expiryOffset()] = common.BigToHash(big.NewInt(exp))
	return out, nil
}

// Decode is the inverse of Encode. Any deviation from the layout, such as
// bytes after the domain length, is ErrSchemaMismatch.
func (s Schema) Decode(p PublicInputs) (*Values, error) {
	const op = "decode public inputs"
	mismatch := func(format string, args ...interface{}) error {
		return types.NewError(types.KindInput, op, errors.Wrapf(ErrSchemaMismatch, format, args...))
	}
	if len(p) != s.Len() {
		return nil, mismatch("schema v%d has %d words, got %d", s.Version, s.Len(), len(p))
	}

	limbMax := new(big.Int).Lsh(big.NewInt(1), s.LimbBits)
	limbs := make([]*big.Int, s.ModulusLimbs)
	for i := range limbs {
		limbs[i] = p[i].Big()
		if limbs[i].Cmp(limbMax) >= 0 {
			return nil, mismatch("modulus limb %d exceeds %d bits", i, s.LimbBits)
		}
	}

	n := p[s.lenOffset()].Big()
	if !n.IsInt64() || n.Int64() > int64(s.MaxDomainLength) {
		return nil, mismatch("domain length %s", n)
	}
	domain := make([]byte, n.Int64())
	for i := 0; i < s.MaxDomainLength; i++ {
		b := p[s.domainOffset()+i].Big()
		if b.Cmp(big.NewInt(0xff)) > 0 {
			return nil, mismatch("domain word %d is not a byte", i)
		}
		if i < len(domain) {
			domain[i] = byte(b.Uint64())
		} else if b.Sign() != 0 {
			return nil, mismatch("domain word %d is set past length %d", i, len(domain))
		}
	}

	pub := p[s.pubkeyOffset()].Big()
	if !field.InField(pub) {
		return nil, mismatch("ephemeral pubkey is not a field element")
	}
	exp := p[s.expiryOffset()].Big()
	if !exp.IsInt64() {
		return nil, mismatch("expiry %s does not fit a timestamp", exp)
	}

	return &Values{
		Modulus:         field.CombineLimbs(limbs, s.LimbBits),
		Domain:          string(domain),
		EphemeralPubkey: pub,
		Expiry:          time.Unix(exp.Int64(), 0).UTC(),
	}, nil
}

// FromCircuitInputs reads the public slots of in and encodes them, so the
// vector follows the same values the circuit was given.
func (s Schema) FromCircuitInputs(in types.CircuitInputs) (PublicInputs, error) {
	const op = "public inputs from circuit inputs"
	limbs, err := in.Ints(types.SlotModulusLimbs)
	if err != nil {
		return nil, types.NewError(types.KindInput, op, err)
	}
	if len(limbs) != s.ModulusLimbs {
		return nil, types.NewError(types.KindInput, op,
			errors.Wrapf(ErrSchemaMismatch, "%d modulus limbs, schema has %d", len(limbs), s.ModulusLimbs))
	}
	domainBytes, err := in.Bytes(types.SlotDomain)
	if err != nil {
		return nil, types.NewError(types.KindInput, op, err)
	}
	n, err := in.Int(types.SlotDomainLen)
	if err != nil {
		return nil, types.NewError(types.KindInput, op, err)
	}
	if !n.IsInt64() || n.Int64() > int64(len(domainBytes)) {
		return nil, types.NewError(types.KindInput, op, errors.Wrapf(ErrSchemaMismatch, "domain length %s", n))
	}
	pub, err := in.Int(types.SlotEphemeralPubkey)
	if err != nil {
		return nil, types.NewError(types.KindInput, op, err)
	}
	exp, err := in.Int(types.SlotEphemeralPubkeyExpiry)
	if err != nil {
		return nil, types.NewError(types.KindInput, op, err)
	}
	if !exp.IsInt64() {
		return nil, types.NewError(types.KindInput, op, errors.Errorf("expiry %s does not fit a timestamp", exp))
	}

	return s.Encode(field.CombineLimbs(limbs, s.LimbBits), string(domainBytes[:n.Int64()]), pub, time.Unix(exp.Int64(), 0))
}

// MismatchError names the first word where two encodings diverge. Index is
// -1 when the lengths differ.
type MismatchError struct {
	Index int
	Want  common.Hash
	Got   common.Hash
	msg   string
}

func (e *MismatchError) Error() string {
	return ErrEncodingMismatch.Error() + ": " + e.msg
}

// Is matches ErrEncodingMismatch.
func (e *MismatchError) Is(target error) bool {
	return target == ErrEncodingMismatch
}

// Compare checks that want and got are the same vector.
func Compare(want, got PublicInputs) error {
	const op = "compare public inputs"
	if len(want) != len(got) {
		return types.NewError(types.KindEncodingMismatch, op,
			&MismatchError{Index: -1, msg: fmt.Sprintf("length %d != %d", len(want), len(got))})
	}
	for i := range want {
		if want[i] != got[i] {
			return types.NewError(types.KindEncodingMismatch, op, &MismatchError{
				Index: i,
				Want:  want[i],
				Got:   got[i],
				msg:   fmt.Sprintf("word %d: %s != %s", i, want[i].Hex(), got[i].Hex()),
			})
		}
	}
	return nil
}
