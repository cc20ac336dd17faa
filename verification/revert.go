package verification

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

var (
	// ErrOnChainRejected is matched by reverts with a known verifier error.
	ErrOnChainRejected = errors.New("proof rejected on chain")
	// ErrUnclassifiedRevert is returned for reverts with an unknown selector.
	ErrUnclassifiedRevert = errors.New("unclassified revert")
	// ErrOnChainFalse is returned when the contract answers false.
	ErrOnChainFalse = errors.New("on-chain verifier returned false")
)

// Selector is the first four bytes of keccak256 of an error or method signature.
type Selector [4]byte

func (s Selector) String() string {
	return hexutil.Encode(s[:])
}

// knownReverts maps verifier error selectors to their names. It is built
// from the error declarations of VerifierABI.
var knownReverts = func() map[Selector]string {
	m := make(map[Selector]string, len(VerifierABI.Errors))
	for name, e := range VerifierABI.Errors {
		var s Selector
		copy(s[:], e.ID[:4])
		m[s] = name
	}
	return m
}()

// RevertName returns the verifier error name of s.
func RevertName(s Selector) (string, bool) {
	name, ok := knownReverts[s]
	return name, ok
}

// RevertError is a revert of the verifier with a known custom error.
type RevertError struct {
	Selector Selector
	Name     string
}

func (e *RevertError) Error() string {
	return ErrOnChainRejected.Error() + ": " + e.Name + " (" + e.Selector.String() + ")"
}

// Is matches ErrOnChainRejected.
func (e *RevertError) Is(target error) bool {
	return target == ErrOnChainRejected
}

// ClassifyRevert turns a contract call error into a classified error. Errors
// without revert data are transport failures and are retryable.
func ClassifyRevert(op string, err error) error {
	if err == nil {
		return nil
	}
	data, ok := revertData(err)
	if !ok {
		return types.NewRetryableError(types.KindOnChainRejection, op, err)
	}
	if len(data) < 4 {
		return types.NewError(types.KindOnChainRejection, op,
			errors.Wrapf(ErrUnclassifiedRevert, "revert data %s", hexutil.Encode(data)))
	}
	var s Selector
	copy(s[:], data[:4])
	if name, ok := knownReverts[s]; ok {
		return types.NewError(types.KindOnChainRejection, op, &RevertError{Selector: s, Name: name})
	}
	return types.NewError(types.KindOnChainRejection, op,
		errors.Wrapf(ErrUnclassifiedRevert, "selector %s", s))
}

func revertData(err error) ([]byte, bool) {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil, false
	}
	switch d := de.ErrorData().(type) {
	case string:
		raw, decodeErr := hex.DecodeString(strings.TrimPrefix(d, "0x"))
		if decodeErr != nil {
			return nil, false
		}
		return raw, true
	case []byte:
		return d, true
	default:
		return nil, false
	}
}
