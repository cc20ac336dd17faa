package circuits

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/zkjwt/go-zkjwt-auth/constants"
	"github.com/zkjwt/go-zkjwt-auth/internal/field"
	"github.com/zkjwt/go-zkjwt-auth/internal/shastate"
	"github.com/zkjwt/go-zkjwt-auth/internal/testutil"
	"github.com/zkjwt/go-zkjwt-auth/jwks"
	"github.com/zkjwt/go-zkjwt-auth/nonce"
	"github.com/zkjwt/go-zkjwt-auth/pubsignals"
	"github.com/zkjwt/go-zkjwt-auth/token"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

const domain = "example.com"

type fixture struct {
	iss    *testutil.Issuer
	key    *jwks.SigningKey
	eph    types.EphemeralKey
	binder *nonce.Binder
	raw    string
	tok    *token.IdentityToken
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	iss := testutil.NewIssuer(t, "https://accounts.example.com", "kid-1")
	binder := nonce.NewBinder(nonce.WithScheme(nonce.MiMC))
	eph := types.EphemeralKey{
		PublicKey: big.NewInt(123456789),
		Salt:      big.NewInt(987654321),
		Expiry:    time.Now().Add(time.Hour),
	}
	n, err := binder.Derive(eph)
	require.NoError(t, err)

	raw := iss.Sign(t, iss.Claims(domain, n.String()))
	tok, err := token.Parse(raw)
	require.NoError(t, err)

	return &fixture{
		iss:    iss,
		binder: binder,
		eph:    eph,
		raw:    raw,
		tok:    tok,
		key: &jwks.SigningKey{
			KeyID:     "kid-1",
			Modulus:   iss.Key.N,
			Exponent:  iss.Key.E,
			Algorithm: "RS256",
			KeyType:   "RSA",
			PublicKey: &iss.Key.PublicKey,
		},
	}
}

func combined(t *testing.T, in types.CircuitInputs, slot string) *big.Int {
	t.Helper()
	limbs, err := in.Ints(slot)
	require.NoError(t, err)
	require.Len(t, limbs, constants.ModulusLimbs)
	return field.CombineLimbs(limbs, constants.LimbBits)
}

func TestBuildFullSignedData(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(f.binder)

	in, err := b.Build(f.tok, f.key, f.eph, domain, constants.DefaultMaxSignedDataLength, nil)
	require.NoError(t, err)

	data, err := in.Bytes(types.SlotData)
	require.NoError(t, err)
	require.Len(t, data, constants.DefaultMaxSignedDataLength)
	require.Equal(t, f.tok.SignedData, string(data[:len(f.tok.SignedData)]))
	for _, c := range data[len(f.tok.SignedData):] {
		require.Zero(t, c)
	}

	dataLen, err := in.Int(types.SlotDataLen)
	require.NoError(t, err)
	require.Equal(t, int64(len(f.tok.SignedData)), dataLen.Int64())

	offset, err := in.Int(types.SlotBase64DecodeOffset)
	require.NoError(t, err)
	require.Equal(t, int64(len(f.tok.HeaderB64)+1), offset.Int64())

	require.Zero(t, combined(t, in, types.SlotModulusLimbs).Cmp(f.iss.Key.N))
	redc := new(big.Int).Lsh(big.NewInt(1), 2*2048+4)
	redc.Quo(redc, f.iss.Key.N)
	require.Zero(t, combined(t, in, types.SlotRedcParamsLimbs).Cmp(redc))
	require.Zero(t, combined(t, in, types.SlotSignatureLimbs).Cmp(new(big.Int).SetBytes(f.tok.Signature)))

	dom, err := in.Bytes(types.SlotDomain)
	require.NoError(t, err)
	require.Len(t, dom, constants.MaxDomainLength)
	require.Equal(t, domain, strings.TrimRight(string(dom), "\x00"))
	domLen, err := in.Int(types.SlotDomainLen)
	require.NoError(t, err)
	require.Equal(t, int64(len(domain)), domLen.Int64())

	expiry, err := in.Int(types.SlotEphemeralPubkeyExpiry)
	require.NoError(t, err)
	require.Equal(t, f.eph.ExpiryUnix(), expiry.Int64())
	pub, err := in.Int(types.SlotEphemeralPubkey)
	require.NoError(t, err)
	require.Zero(t, pub.Cmp(f.eph.PublicKey))

	require.False(t, in.Has(types.SlotPartialData))
	require.False(t, in.Has(types.SlotPartialHash))

	again, err := b.Build(f.tok, f.key, f.eph, domain, constants.DefaultMaxSignedDataLength, nil)
	require.NoError(t, err)
	require.Equal(t, in, again)
}

func TestBuildRejects(t *testing.T) {
	f := newFixture(t)

	rs512, err := token.Parse(f.iss.SignWith(t, jwt.SigningMethodRS512, f.iss.Claims(domain, f.tok.Nonce)))
	require.NoError(t, err)

	sigStart := strings.LastIndexByte(f.raw, '.') + 1
	flipped := []byte(f.raw)
	if flipped[sigStart] == 'A' {
		flipped[sigStart] = 'B'
	} else {
		flipped[sigStart] = 'A'
	}
	tampered, err := token.Parse(string(flipped))
	require.NoError(t, err)

	otherKid := *f.key
	otherKid.KeyID = "kid-2"

	otherSalt := f.eph
	otherSalt.Salt = big.NewInt(1)

	tests := []struct {
		name   string
		tok    *token.IdentityToken
		key    *jwks.SigningKey
		eph    types.EphemeralKey
		domain string
		maxLen int
		binder *nonce.Binder
		want   error
		kind   types.Kind
	}{
		{name: "algorithm", tok: rs512, want: ErrUnsupportedAlgorithm, kind: types.KindInput},
		{name: "key id", key: &otherKid, want: ErrKeyMismatch, kind: types.KindInput},
		{name: "signature", tok: tampered, want: token.ErrInvalidSignature, kind: types.KindInput},
		{name: "too long", maxLen: 64, want: ErrTokenTooLong, kind: types.KindInput},
		{name: "domain too long", domain: strings.Repeat("a", constants.MaxDomainLength+1), want: ErrDomainTooLong, kind: types.KindInput},
		{name: "domain mismatch", domain: "other.example", want: ErrDomainMismatch, kind: types.KindInput},
		{name: "other salt", eph: otherSalt, want: ErrBindingMismatch, kind: types.KindBinding},
		{name: "poseidon binder", binder: nonce.NewBinder(), want: ErrBindingMismatch, kind: types.KindBinding},
		{
			name:   "expired",
			binder: nonce.NewBinder(nonce.WithScheme(nonce.MiMC), nonce.WithClock(func() time.Time { return f.eph.Expiry.Add(time.Minute) })),
			want:   nonce.ErrExpired,
			kind:   types.KindBinding,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, key, eph, dom, maxLen, binder := f.tok, f.key, f.eph, domain, constants.DefaultMaxSignedDataLength, f.binder
			if tt.tok != nil {
				tok = tt.tok
			}
			if tt.key != nil {
				key = tt.key
			}
			if tt.eph.PublicKey != nil {
				eph = tt.eph
			}
			if tt.domain != "" {
				dom = tt.domain
			}
			if tt.maxLen != 0 {
				maxLen = tt.maxLen
			}
			if tt.binder != nil {
				binder = tt.binder
			}

			in, err := NewBuilder(binder).Build(tok, key, eph, dom, maxLen, nil)
			require.ErrorIs(t, err, tt.want)
			require.Equal(t, tt.kind, types.KindOf(err))
			require.Nil(t, in)
		})
	}
}

func TestBuildKeyWithoutPublicKey(t *testing.T) {
	f := newFixture(t)
	bare := &jwks.SigningKey{KeyID: "kid-1", Modulus: f.iss.Key.N, Exponent: f.iss.Key.E, Algorithm: "RS256", KeyType: "RSA"}

	var (
		in  types.CircuitInputs
		err error
	)
	require.NotPanics(t, func() {
		in, err = NewBuilder(f.binder).Build(f.tok, bare, f.eph, domain, constants.DefaultMaxSignedDataLength, nil)
	})
	require.NoError(t, err)

	want, err := NewBuilder(f.binder).Build(f.tok, f.key, f.eph, domain, constants.DefaultMaxSignedDataLength, nil)
	require.NoError(t, err)
	require.Equal(t, want, in)
}

func TestBuildRejectsUnusableKey(t *testing.T) {
	f := newFixture(t)
	wide := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 3071), big.NewInt(1))

	tests := map[string]struct {
		key  jwks.SigningKey
		want error
	}{
		"nil modulus":      {key: jwks.SigningKey{KeyID: "kid-1", Exponent: 65537}},
		"zero modulus":     {key: jwks.SigningKey{KeyID: "kid-1", Modulus: new(big.Int), Exponent: 65537}},
		"negative modulus": {key: jwks.SigningKey{KeyID: "kid-1", Modulus: big.NewInt(-7), Exponent: 65537}},
		"no exponent":      {key: jwks.SigningKey{KeyID: "kid-1", Modulus: f.iss.Key.N}},
		"too wide": {
			key:  jwks.SigningKey{KeyID: "kid-1", Modulus: wide, Exponent: 65537, PublicKey: &rsa.PublicKey{N: wide, E: 65537}},
			want: pubsignals.ErrModulusTooWide,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			key := tt.key
			var err error
			require.NotPanics(t, func() {
				_, err = NewBuilder(f.binder).Build(f.tok, &key, f.eph, domain, constants.DefaultMaxSignedDataLength, nil)
			})
			require.Error(t, err)
			require.Equal(t, types.KindInput, types.KindOf(err))
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestBuildAlgorithmCheckedBeforeBinding(t *testing.T) {
	f := newFixture(t)
	rs512, err := token.Parse(f.iss.SignWith(t, jwt.SigningMethodRS512, f.iss.Claims(domain, "1")))
	require.NoError(t, err)

	_, err = NewBuilder(f.binder).Build(rs512, f.key, f.eph, domain, constants.DefaultMaxSignedDataLength, nil)
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)
	require.NotErrorIs(t, err, ErrBindingMismatch)
}

func TestBuildWithShaPrecompute(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(f.binder)
	keys := []string{"email", "nonce"}

	cp, err := Checkpoint(f.tok, keys)
	require.NoError(t, err)
	require.Positive(t, cp.Cutoff)
	require.Zero(t, cp.Cutoff%constants.ShaBlockSize)

	in, err := b.Build(f.tok, f.key, f.eph, domain, constants.DefaultMaxSignedDataLength,
		&ShaPrecomputeHint{Keys: keys, Cutoff: cp.Cutoff, State: &cp.State})
	require.NoError(t, err)
	require.False(t, in.Has(types.SlotData))

	partialLen, err := in.Int(types.SlotPartialDataLen)
	require.NoError(t, err)
	require.Equal(t, int64(len(f.tok.SignedData)-cp.Cutoff), partialLen.Int64())
	partial, err := in.Bytes(types.SlotPartialData)
	require.NoError(t, err)
	partial = partial[:partialLen.Int64()]
	require.Equal(t, f.tok.SignedData[cp.Cutoff:], string(partial))

	fullLen, err := in.Int(types.SlotFullDataLength)
	require.NoError(t, err)
	require.Equal(t, int64(len(f.tok.SignedData)), fullLen.Int64())

	words, err := in.Ints(types.SlotPartialHash)
	require.NoError(t, err)
	require.Len(t, words, 8)
	var st shastate.State
	for i, w := range words {
		st[i] = uint32(w.Uint64())
	}
	h, err := shastate.Resume(st, uint64(cp.Cutoff))
	require.NoError(t, err)
	h.Write(partial)
	want := sha256.Sum256([]byte(f.tok.SignedData))
	require.Equal(t, want[:], h.Sum(nil))

	// the payload decoded from the offset still carries the bound claims
	offset, err := in.Int(types.SlotBase64DecodeOffset)
	require.NoError(t, err)
	require.Equal(t, int64(cp.Base64DecodeOffset), offset.Int64())
	visible, err := base64.RawURLEncoding.DecodeString(string(partial[offset.Int64():]))
	require.NoError(t, err)
	require.Contains(t, string(visible), `"nonce":"`+f.tok.Nonce+`"`)
	require.Contains(t, string(visible), `"email":"member@example.com"`)
}

func TestBuildPrecomputeHintMismatch(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(f.binder)
	cp, err := Checkpoint(f.tok, []string{"nonce"})
	require.NoError(t, err)

	wrongState := cp.State
	wrongState[0]++

	tests := map[string]*ShaPrecomputeHint{
		"missing key":  {Keys: []string{"groups"}},
		"no keys":      {},
		"cutoff":       {Keys: []string{"nonce"}, Cutoff: cp.Cutoff + constants.ShaBlockSize},
		"state":        {Keys: []string{"nonce"}, State: &wrongState},
		"cutoff+state": {Keys: []string{"nonce"}, Cutoff: cp.Cutoff, State: &wrongState},
	}
	for name, hint := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := b.Build(f.tok, f.key, f.eph, domain, constants.DefaultMaxSignedDataLength, hint)
			require.ErrorIs(t, err, ErrBindingMismatch)
			require.Equal(t, types.KindBinding, types.KindOf(err))
		})
	}
}

func TestBuildPrecomputeRemainderTooLong(t *testing.T) {
	f := newFixture(t)
	_, err := NewBuilder(f.binder).Build(f.tok, f.key, f.eph, domain, 32, &ShaPrecomputeHint{Keys: []string{"nonce"}})
	require.ErrorIs(t, err, ErrTokenTooLong)
}

func TestCheckpointDecodeOffset(t *testing.T) {
	header := strings.Repeat("h", 10)
	for _, tc := range []struct {
		minIdx int
		cutoff int
		offset int
	}{
		// idx*4/3 + 11 below one block: nothing is precomputed, payload starts at 11
		{minIdx: 30, cutoff: 0, offset: 11},
		// 60*4/3 + 11 = 91, cutoff 64, 53 payload chars precomputed
		{minIdx: 60, cutoff: 64, offset: 3},
		// 200*4/3 + 11 = 277, cutoff 256, 245 precomputed
		{minIdx: 200, cutoff: 256, offset: 3},
	} {
		payload := strings.Repeat("x", tc.minIdx) + `"nonce":"1"}`
		payloadB64 := base64.RawURLEncoding.EncodeToString([]byte(payload))
		tok := &token.IdentityToken{
			HeaderB64:  header,
			PayloadB64: payloadB64,
			SignedData: header + "." + payloadB64,
			Payload:    []byte(payload),
		}
		cp, err := Checkpoint(tok, []string{"nonce"})
		require.NoError(t, err)
		require.Equal(t, tc.cutoff, cp.Cutoff)
		require.Equal(t, tc.offset, cp.Base64DecodeOffset)
	}
}
