// Package storage defines the external store of members, messages and
// verification records.
package storage

import (
	"context"
	"io"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

var (
	// ErrNotFound is returned when a member, message or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidLimit is returned for a non-positive message limit.
	ErrInvalidLimit = errors.New("limit must be positive")
)

// MemberStore keeps members by ephemeral public key.
type MemberStore interface {
	// AddMember inserts m, replacing a member with the same public key.
	AddMember(ctx context.Context, m types.Member) error
	GetMember(ctx context.Context, pubkey string) (*types.Member, error)
}

// MessageStore keeps messages under sequential ids starting at 1.
type MessageStore interface {
	// AddMessage assigns the next id to msg and stores it with zero likes.
	AddMessage(ctx context.Context, msg types.SignedMessage) (types.SignedMessage, error)
	GetMessage(ctx context.Context, id uint32) (*types.SignedMessage, error)
	// LatestMessages returns at most limit messages, newest first.
	LatestMessages(ctx context.Context, limit int) ([]types.SignedMessage, error)
	Likes(ctx context.Context, id uint32) (uint32, error)
	// UpdateLikes increments or decrements the likes of a message and returns
	// the new count. A decrement never goes below zero.
	UpdateLikes(ctx context.Context, id uint32, increase bool) (uint32, error)
}

// RecordStore keeps one verification record per fingerprint.
type RecordStore interface {
	// RecordVerification stores rec unless a record with the same fingerprint
	// exists. It returns the stored record and whether it was created.
	RecordVerification(ctx context.Context, rec types.VerificationRecord) (types.VerificationRecord, bool, error)
	GetVerification(ctx context.Context, fingerprint common.Hash) (*types.VerificationRecord, error)
	// SetRecordTransaction attaches the on-chain transaction of a record.
	SetRecordTransaction(ctx context.Context, fingerprint, tx common.Hash) error
}

// Store is the complete external store.
type Store interface {
	MemberStore
	MessageStore
	RecordStore
	io.Closer
}

// MessageID formats a message id the way it is stored in SignedMessage.ID.
func MessageID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
