// Package circuits assembles the inputs of the JWT membership circuit.
package circuits

import (
	"crypto/rsa"
	"math/big"

	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/constants"
	"github.com/zkjwt/go-zkjwt-auth/internal/field"
	"github.com/zkjwt/go-zkjwt-auth/jwks"
	"github.com/zkjwt/go-zkjwt-auth/nonce"
	"github.com/zkjwt/go-zkjwt-auth/pubsignals"
	"github.com/zkjwt/go-zkjwt-auth/token"
	"github.com/zkjwt/go-zkjwt-auth/types"
	"go.uber.org/zap"
)

var (
	ErrTokenTooLong         = errors.New("signed data exceeds maximum length")
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	ErrBindingMismatch      = errors.New("binding mismatch")
	ErrKeyMismatch          = errors.New("token key id does not match issuer key")
	ErrDomainMismatch       = errors.New("token domain does not match")
	ErrDomainTooLong        = errors.New("domain too long")
)

const opBuild = "build circuit inputs"

// redcShift is 2*2048+4, the Barrett reduction shift used by the circuit's
// bignum library.
const redcShift = 2*constants.ModulusBits + 4

// Builder turns a token, issuer key and ephemeral key into circuit inputs.
type Builder struct {
	binder *nonce.Binder
	logger *zap.Logger
}

// Option configures Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// NewBuilder creates a Builder that checks nonce bindings with binder.
func NewBuilder(binder *nonce.Binder, opts ...Option) *Builder {
	b := &Builder{binder: binder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the circuit inputs. Without hint the whole signed data is
// hashed in-circuit; with hint the prefix up to the hint cutoff is replaced
// by its SHA-256 midstate, which is checked against the token bytes.
func (b *Builder) Build(tok *token.IdentityToken, key *jwks.SigningKey, eph types.EphemeralKey,
	domain string, maxSignedDataLen int, hint *ShaPrecomputeHint) (types.CircuitInputs, error) {
	if tok == nil || key == nil {
		return nil, types.NewError(types.KindInput, opBuild, errors.New("token and issuer key are required"))
	}
	pub, err := issuerPublicKey(key)
	if err != nil {
		return nil, err
	}
	if tok.Algorithm != constants.SupportedAlgorithm {
		return nil, types.NewError(types.KindInput, opBuild,
			errors.Wrapf(ErrUnsupportedAlgorithm, "%q, circuit supports %s", tok.Algorithm, constants.SupportedAlgorithm))
	}
	if tok.KeyID != key.KeyID {
		return nil, types.NewError(types.KindInput, opBuild,
			errors.Wrapf(ErrKeyMismatch, "token kid %s, key %s", tok.KeyID, key.KeyID))
	}
	if err := tok.VerifySignature(pub); err != nil {
		return nil, types.NewError(types.KindInput, opBuild, err)
	}
	if len(domain) > constants.MaxDomainLength {
		return nil, types.NewError(types.KindInput, opBuild,
			errors.Wrapf(ErrDomainTooLong, "%d bytes, max %d", len(domain), constants.MaxDomainLength))
	}
	if td := tok.Domain(); td != domain {
		return nil, types.NewError(types.KindInput, opBuild,
			errors.Wrapf(ErrDomainMismatch, "token is for %q, requested %q", td, domain))
	}
	if err := b.binder.Bind(tok, eph); err != nil {
		if types.KindOf(err) == types.KindInput {
			return nil, err
		}
		return nil, bindingErr(err)
	}

	inputs := types.CircuitInputs{}
	if hint == nil {
		if len(tok.SignedData) > maxSignedDataLen {
			return nil, types.NewError(types.KindInput, opBuild,
				errors.Wrapf(ErrTokenTooLong, "%d bytes, max %d", len(tok.SignedData), maxSignedDataLen))
		}
		inputs.SetBytes(types.SlotData, []byte(tok.SignedData), maxSignedDataLen)
		inputs.SetUint(types.SlotDataLen, uint64(len(tok.SignedData)))
		inputs.SetUint(types.SlotBase64DecodeOffset, uint64(len(tok.HeaderB64)+1))
	} else if err := b.setPrecomputed(inputs, tok, hint, maxSignedDataLen); err != nil {
		return nil, err
	}

	if err := setRSA(inputs, key, tok.Signature); err != nil {
		return nil, err
	}

	inputs.SetBytes(types.SlotDomain, []byte(domain), constants.MaxDomainLength)
	inputs.SetUint(types.SlotDomainLen, uint64(len(domain)))
	inputs.SetInt(types.SlotEphemeralPubkey, eph.PublicKey)
	inputs.SetInt(types.SlotEphemeralPubkeySalt, eph.Salt)
	inputs.SetInt(types.SlotEphemeralPubkeyExpiry, big.NewInt(eph.ExpiryUnix()))

	b.logger.Debug("circuit inputs built",
		zap.String("kid", key.KeyID),
		zap.String("domain", domain),
		zap.Int("signed_data_len", len(tok.SignedData)),
		zap.Bool("sha_precompute", hint != nil))
	return inputs, nil
}

func (b *Builder) setPrecomputed(inputs types.CircuitInputs, tok *token.IdentityToken, hint *ShaPrecomputeHint, maxSignedDataLen int) error {
	cp, err := Checkpoint(tok, hint.Keys)
	if err != nil {
		return err
	}
	if err := hint.verify(cp); err != nil {
		return err
	}

	rest := tok.SignedData[cp.Cutoff:]
	if len(rest) > maxSignedDataLen {
		return types.NewError(types.KindInput, opBuild,
			errors.Wrapf(ErrTokenTooLong, "%d bytes after precompute, max %d", len(rest), maxSignedDataLen))
	}

	inputs.SetBytes(types.SlotPartialData, []byte(rest), maxSignedDataLen)
	inputs.SetUint(types.SlotPartialDataLen, uint64(len(rest)))
	hash := make([]*big.Int, len(cp.State))
	for i, w := range cp.State {
		hash[i] = new(big.Int).SetUint64(uint64(w))
	}
	inputs.SetInts(types.SlotPartialHash, hash)
	inputs.SetUint(types.SlotFullDataLength, uint64(len(tok.SignedData)))
	inputs.SetUint(types.SlotBase64DecodeOffset, uint64(cp.Base64DecodeOffset))
	return nil
}

// issuerPublicKey checks that the key fits the circuit. Keys carrying only
// modulus and exponent get their public key derived.
func issuerPublicKey(key *jwks.SigningKey) (*rsa.PublicKey, error) {
	if key.Modulus == nil || key.Modulus.Sign() <= 0 {
		return nil, types.NewError(types.KindInput, opBuild, errors.Errorf("key %s has no positive modulus", key.KeyID))
	}
	if key.Modulus.BitLen() > constants.ModulusBits {
		return nil, types.NewError(types.KindInput, opBuild,
			errors.Wrapf(pubsignals.ErrModulusTooWide, "key %s has %d bits, circuit takes %d", key.KeyID, key.Modulus.BitLen(), constants.ModulusBits))
	}
	if key.PublicKey != nil {
		return key.PublicKey, nil
	}
	if key.Exponent < 2 {
		return nil, types.NewError(types.KindInput, opBuild, errors.Errorf("key %s has exponent %d", key.KeyID, key.Exponent))
	}
	return &rsa.PublicKey{N: key.Modulus, E: key.Exponent}, nil
}

func setRSA(inputs types.CircuitInputs, key *jwks.SigningKey, signature []byte) error {
	n := key.Modulus
	modulus, err := field.SplitLimbs(n, constants.LimbBits, constants.ModulusLimbs)
	if err != nil {
		return types.NewError(types.KindInput, opBuild, errors.WithMessage(err, "modulus"))
	}
	redc := new(big.Int).Lsh(big.NewInt(1), redcShift)
	redc.Quo(redc, n)
	redcLimbs, err := field.SplitLimbs(redc, constants.LimbBits, constants.ModulusLimbs)
	if err != nil {
		return types.NewError(types.KindInput, opBuild, errors.WithMessage(err, "redc params"))
	}
	sig := new(big.Int).SetBytes(signature)
	if sig.Cmp(n) >= 0 {
		return types.NewError(types.KindInput, opBuild, errors.New("signature is not reduced modulo the issuer modulus"))
	}
	sigLimbs, err := field.SplitLimbs(sig, constants.LimbBits, constants.ModulusLimbs)
	if err != nil {
		return types.NewError(types.KindInput, opBuild, errors.WithMessage(err, "signature"))
	}

	inputs.SetInts(types.SlotModulusLimbs, modulus)
	inputs.SetInts(types.SlotRedcParamsLimbs, redcLimbs)
	inputs.SetInts(types.SlotSignatureLimbs, sigLimbs)
	return nil
}
