// Package nonce binds ephemeral key material to the nonce claim of an
// identity token.
package nonce

import (
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/internal/field"
	"github.com/zkjwt/go-zkjwt-auth/token"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

var (
	// ErrExpired is returned when the ephemeral key expiry is not in the future.
	ErrExpired = errors.New("ephemeral key expired")
	// ErrNonceMismatch is returned when the token nonce does not bind the key material.
	ErrNonceMismatch = errors.New("token nonce does not match ephemeral key")
	// ErrNonceClaim is returned when the token nonce is missing or not a field element.
	ErrNonceClaim = errors.New("invalid token nonce claim")
)

const opBind = "bind nonce"

// DeriveNonce computes scheme(pubkey, salt, expiry seconds). Every input must
// be a field element.
func DeriveNonce(scheme Scheme, pubkey, salt *big.Int, expiry time.Time) (*big.Int, error) {
	exp := big.NewInt(expiry.Unix())
	inputs := []struct {
		name string
		v    *big.Int
	}{{"pubkey", pubkey}, {"salt", salt}, {"expiry", exp}}
	for _, in := range inputs {
		if !field.InField(in.v) {
			return nil, types.NewError(types.KindInput, "derive nonce", errors.Wrap(field.ErrOutOfField, in.name))
		}
	}
	n, err := scheme.Hash([]*big.Int{pubkey, salt, exp})
	if err != nil {
		return nil, types.NewError(types.KindInput, "derive nonce", err)
	}
	return n, nil
}

// Binder checks that a token was issued for a given ephemeral key.
type Binder struct {
	scheme Scheme
	now    func() time.Time
}

// Option configures Binder.
type Option func(*Binder)

// WithScheme sets the nonce hash. Poseidon is the default.
func WithScheme(s Scheme) Option {
	return func(b *Binder) {
		b.scheme = s
	}
}

// WithClock sets the verification clock.
func WithClock(now func() time.Time) Option {
	return func(b *Binder) {
		b.now = now
	}
}

// NewBinder creates a Binder.
func NewBinder(opts ...Option) *Binder {
	b := &Binder{scheme: Poseidon, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Scheme returns the nonce hash in use.
func (b *Binder) Scheme() Scheme {
	return b.scheme
}

// Derive computes the nonce of eph.
func (b *Binder) Derive(eph types.EphemeralKey) (*big.Int, error) {
	return DeriveNonce(b.scheme, eph.PublicKey, eph.Salt, eph.Expiry)
}

// CheckBinding reports whether tok's nonce binds eph and eph has not expired.
// Any failure, including a malformed claim, yields false.
func (b *Binder) CheckBinding(tok *token.IdentityToken, eph types.EphemeralKey) bool {
	return b.Bind(tok, eph) == nil
}

// Bind is CheckBinding with the reason for a failure.
func (b *Binder) Bind(tok *token.IdentityToken, eph types.EphemeralKey) error {
	if tok == nil {
		return types.NewError(types.KindBinding, opBind, errors.Wrap(ErrNonceClaim, "no token"))
	}
	if err := eph.Validate(); err != nil {
		return types.NewError(types.KindInput, opBind, err)
	}
	if now := b.now(); !eph.Expiry.After(now) {
		return types.NewError(types.KindBinding, opBind,
			errors.Wrapf(ErrExpired, "expiry %s is not after %s", eph.Expiry.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339)))
	}
	claim, err := field.ParseElement(tok.Nonce)
	if err != nil {
		return types.NewError(types.KindBinding, opBind, errors.Wrap(ErrNonceClaim, err.Error()))
	}
	want, err := b.Derive(eph)
	if err != nil {
		return err
	}
	if claim.Cmp(want) != 0 {
		return types.NewError(types.KindBinding, opBind, errors.Wrapf(ErrNonceMismatch, "scheme %s", b.scheme.Name()))
	}
	return nil
}
