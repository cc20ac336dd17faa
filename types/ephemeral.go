package types

import (
	"crypto/rand"
	"io"
	"math/big"
	"time"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/internal/field"
)

// ErrExpiryNotInFuture is returned when a key is generated already expired.
var ErrExpiryNotInFuture = errors.New("ephemeral key expiry is not in the future")

// EphemeralKey is the client-generated session key material bound into the
// token nonce. The salt is single use.
type EphemeralKey struct {
	PublicKey *big.Int
	Salt      *big.Int
	Expiry    time.Time
}

// ParseEphemeralKey parses decimal or 0x hex integers and an RFC 3339 expiry,
// e.g. "2025-05-07T09:07:57.379Z".
func ParseEphemeralKey(pubkey, salt, expiry string) (EphemeralKey, error) {
	var k EphemeralKey
	var err error
	if k.PublicKey, err = field.ParseBigInt(pubkey); err != nil {
		return k, NewError(KindInput, "parse ephemeral pubkey", err)
	}
	if k.Salt, err = field.ParseBigInt(salt); err != nil {
		return k, NewError(KindInput, "parse ephemeral salt", err)
	}
	if k.Expiry, err = time.Parse(time.RFC3339Nano, expiry); err != nil {
		return k, NewError(KindInput, "parse ephemeral expiry", errors.WithStack(err))
	}
	return k, nil
}

// ExpiryUnix is the expiry in whole seconds, the unit the circuit uses.
func (k EphemeralKey) ExpiryUnix() int64 {
	return k.Expiry.Unix()
}

// Validate checks that the key material is complete and fits the field.
func (k EphemeralKey) Validate() error {
	if k.PublicKey == nil || k.Salt == nil {
		return errors.New("ephemeral key material is incomplete")
	}
	if !field.InField(k.PublicKey) {
		return errors.Wrap(field.ErrOutOfField, "ephemeral pubkey")
	}
	if !field.InField(k.Salt) {
		return errors.Wrap(field.ErrOutOfField, "ephemeral salt")
	}
	if k.Expiry.Unix() < 0 {
		return errors.New("ephemeral expiry before unix epoch")
	}
	return nil
}

// EphemeralKeyPair is a generated ephemeral key together with the
// BabyJubJub private key that signs messages for it.
type EphemeralKeyPair struct {
	EphemeralKey
	PrivateKey babyjub.PrivateKey
}

// GenerateEphemeralKey creates a fresh key pair and salt valid until expiry.
func GenerateEphemeralKey(expiry time.Time) (*EphemeralKeyPair, error) {
	return generateEphemeralKey(rand.Reader, time.Now(), expiry)
}

func generateEphemeralKey(random io.Reader, now, expiry time.Time) (*EphemeralKeyPair, error) {
	const op = "generate ephemeral key"
	if !expiry.After(now) {
		return nil, NewError(KindInput, op, errors.Wrapf(ErrExpiryNotInFuture, "expiry %s", expiry.UTC().Format(time.RFC3339)))
	}
	var kp EphemeralKeyPair
	if _, err := io.ReadFull(random, kp.PrivateKey[:]); err != nil {
		return nil, NewError(KindUnknown, op, errors.WithStack(err))
	}
	pub, err := EphemeralPubkey(kp.PrivateKey.Public())
	if err != nil {
		return nil, NewError(KindUnknown, op, err)
	}
	salt, err := rand.Int(random, field.Modulus())
	if err != nil {
		return nil, NewError(KindUnknown, op, errors.WithStack(err))
	}
	kp.EphemeralKey = EphemeralKey{PublicKey: pub, Salt: salt, Expiry: expiry}
	return &kp, nil
}

// EphemeralPubkey is the field element a BabyJubJub public key is bound
// into the nonce as: poseidon(Ax, Ay).
func EphemeralPubkey(pub *babyjub.PublicKey) (*big.Int, error) {
	h, err := poseidon.Hash([]*big.Int{pub.X, pub.Y})
	return h, errors.Wrap(err, "poseidon")
}
