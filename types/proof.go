package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Proof is the opaque output of a proving backend.
type Proof []byte

// VerificationRecord is written once per (proof, public inputs) fingerprint.
type VerificationRecord struct {
	Fingerprint   common.Hash   `json:"fingerprint"`
	Verified      bool          `json:"verified"`
	RecordedAt    time.Time     `json:"recorded_at"`
	SchemaVersion uint8         `json:"schema_version"`
	PublicInputs  []common.Hash `json:"public_inputs,omitempty"`
	// TxHash is set once the record is also stored on-chain.
	TxHash *common.Hash `json:"tx_hash,omitempty"`
}
