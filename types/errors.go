package types

import (
	"github.com/pkg/errors"
)

// Kind classifies pipeline failures so callers can tell "fix the input"
// from "retry later".
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInput
	KindBinding
	KindKeyResolution
	KindProving
	KindLocalVerification
	KindOnChainRejection
	KindRecording
	KindEncodingMismatch
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindInput:             "input",
	KindBinding:           "binding",
	KindKeyResolution:     "key_resolution",
	KindProving:           "proving",
	KindLocalVerification: "local_verification",
	KindOnChainRejection:  "onchain_rejection",
	KindRecording:         "recording",
	KindEncodingMismatch:  "encoding_mismatch",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return kindNames[KindUnknown]
}

// Error is a classified pipeline error.
type Error struct {
	Kind      Kind
	Op        string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError classifies err as a terminal failure of the given kind.
func NewError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewRetryableError classifies err as a transient failure of the given kind.
func NewRetryableError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Retryable: true, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the outermost classified error is transient.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
