package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/internal/field"
)

var (
	ErrUnsigned         = errors.New("message is not signed")
	ErrMessageSignature = errors.New("invalid message signature")
)

// signatureLen is a compressed public key followed by a compressed
// EdDSA-Poseidon signature.
const signatureLen = 32 + 64

// SignMessage signs msg with the key pair. The sender fields are set from
// the key and an empty timestamp is set to now.
func (k *EphemeralKeyPair) SignMessage(msg SignedMessage) (SignedMessage, error) {
	const op = "sign message"
	msg.EphemeralPubkey = k.PublicKey.String()
	msg.EphemeralPubkeyExpiry = k.Expiry.UTC().Format(time.RFC3339Nano)
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	h, err := MessageHash(msg)
	if err != nil {
		return msg, NewError(KindInput, op, err)
	}

	pub := k.PrivateKey.Public().Compress()
	sig := k.PrivateKey.SignPoseidon(h).Compress()
	msg.Signature = hexutil.Encode(append(pub[:], sig[:]...))
	return msg, nil
}

// VerifyMessage checks that msg was signed by the key behind its
// EphemeralPubkey and that none of the signed fields changed.
func VerifyMessage(msg SignedMessage) error {
	const op = "verify message signature"
	if msg.Signature == "" {
		return NewError(KindInput, op, ErrUnsigned)
	}
	raw, err := hexutil.Decode(msg.Signature)
	if err != nil || len(raw) != signatureLen {
		return NewError(KindInput, op, errors.Wrap(ErrMessageSignature, "malformed"))
	}

	var pubComp babyjub.PublicKeyComp
	copy(pubComp[:], raw[:32])
	pub, err := pubComp.Decompress()
	if err != nil {
		return NewError(KindInput, op, errors.Wrapf(ErrMessageSignature, "public key: %v", err))
	}
	var sigComp babyjub.SignatureComp
	copy(sigComp[:], raw[32:])
	sig, err := sigComp.Decompress()
	if err != nil {
		return NewError(KindInput, op, errors.Wrapf(ErrMessageSignature, "signature: %v", err))
	}
	if sig.S.Cmp(babyjub.SubOrder) >= 0 {
		return NewError(KindInput, op, errors.Wrap(ErrMessageSignature, "signature scalar out of range"))
	}

	want, err := field.ParseBigInt(msg.EphemeralPubkey)
	if err != nil {
		return NewError(KindInput, op, err)
	}
	got, err := EphemeralPubkey(pub)
	if err != nil {
		return NewError(KindInput, op, err)
	}
	if got.Cmp(want) != 0 {
		return NewError(KindInput, op, errors.Wrap(ErrMessageSignature, "signed by another key"))
	}

	h, err := MessageHash(msg)
	if err != nil {
		return NewError(KindInput, op, err)
	}
	if !pub.VerifyPoseidon(h, sig) {
		return NewError(KindInput, op, ErrMessageSignature)
	}
	return nil
}

// MessageHash is the value a message signature covers:
// poseidon(group, text, timestamp, internal, pubkey, expiry), with the
// strings hashed by poseidon.HashBytes and the expiry in unix seconds.
func MessageHash(msg SignedMessage) (*big.Int, error) {
	pubkey, err := field.ParseElement(msg.EphemeralPubkey)
	if err != nil {
		return nil, errors.WithMessage(err, "ephemeral pubkey")
	}
	expiry, err := time.Parse(time.RFC3339Nano, msg.EphemeralPubkeyExpiry)
	if err != nil {
		return nil, errors.Wrap(err, "ephemeral pubkey expiry")
	}
	inputs := make([]*big.Int, 0, 6)
	for _, s := range []string{msg.AnonGroupID, msg.Text, msg.Timestamp} {
		e, err := bytesElement(s)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, e)
	}
	internal := big.NewInt(0)
	if msg.Internal {
		internal.SetInt64(1)
	}
	inputs = append(inputs, internal, pubkey, big.NewInt(expiry.Unix()))

	h, err := poseidon.Hash(inputs)
	return h, errors.Wrap(err, "poseidon")
}

func bytesElement(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	h, err := poseidon.HashBytes([]byte(s))
	return h, errors.Wrap(err, "poseidon")
}
