package circuits

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/constants"
	"github.com/zkjwt/go-zkjwt-auth/internal/shastate"
	"github.com/zkjwt/go-zkjwt-auth/token"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

// ShaPrecomputeHint asks the builder to hash the signed data outside the
// circuit up to the last block boundary before the first of Keys. Cutoff and
// State are optional; when set they must equal what the token produces.
type ShaPrecomputeHint struct {
	Keys   []string
	Cutoff int
	State  *shastate.State
}

// PrecomputeCheckpoint is the split point of the signed data.
type PrecomputeCheckpoint struct {
	// Cutoff is the number of signed data bytes hashed outside the circuit.
	Cutoff int
	State  shastate.State
	// Base64DecodeOffset is where base64 decoding of the payload resumes
	// within the remaining bytes.
	Base64DecodeOffset int
}

// Checkpoint computes the precompute split of tok for keys.
func Checkpoint(tok *token.IdentityToken, keys []string) (PrecomputeCheckpoint, error) {
	var cp PrecomputeCheckpoint
	if len(keys) == 0 {
		return cp, bindingErr(errors.New("sha precompute needs at least one claim key"))
	}
	minIdx := -1
	for _, k := range keys {
		idx := bytes.Index(tok.Payload, []byte(`"`+k+`"`))
		if idx < 0 {
			return cp, bindingErr(errors.Errorf("claim %q not present in payload", k))
		}
		if minIdx < 0 || idx < minIdx {
			minIdx = idx
		}
	}

	payloadStart := len(tok.HeaderB64) + 1
	idxInB64 := minIdx*4/3 + payloadStart
	cp.Cutoff = idxInB64 - idxInB64%constants.ShaBlockSize

	st, err := shastate.Midstate([]byte(tok.SignedData[:cp.Cutoff]))
	if err != nil {
		return cp, types.NewError(types.KindInput, opBuild, err)
	}
	cp.State = st

	precomputed := cp.Cutoff - payloadStart
	if precomputed <= 0 {
		// the cutoff falls in the header, decoding starts at the payload
		cp.Base64DecodeOffset = -precomputed
	} else {
		cp.Base64DecodeOffset = 4 - precomputed%4
	}
	return cp, nil
}

func (h *ShaPrecomputeHint) verify(cp PrecomputeCheckpoint) error {
	if h.Cutoff != 0 && h.Cutoff != cp.Cutoff {
		return bindingErr(errors.Errorf("hint cutoff %d, token gives %d", h.Cutoff, cp.Cutoff))
	}
	if h.State != nil && *h.State != cp.State {
		return bindingErr(errors.New("hint sha state does not match token prefix"))
	}
	return nil
}

// bindingMismatch matches ErrBindingMismatch and keeps the cause reachable.
type bindingMismatch struct{ err error }

func (e *bindingMismatch) Error() string {
	return ErrBindingMismatch.Error() + ": " + e.err.Error()
}

func (e *bindingMismatch) Is(target error) bool { return target == ErrBindingMismatch }

func (e *bindingMismatch) Unwrap() error { return e.err }

func bindingErr(err error) error {
	return types.NewError(types.KindBinding, opBuild, &bindingMismatch{err: err})
}
