// Package storagetest is a behaviour suite shared by storage.Store
// implementations.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zkjwt/go-zkjwt-auth/storage"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

// Run runs the suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("members", func(t *testing.T) { testMembers(t, newStore(t)) })
	t.Run("messages", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("likes", func(t *testing.T) { testLikes(t, newStore(t)) })
	t.Run("records", func(t *testing.T) { testRecords(t, newStore(t)) })
	t.Run("concurrent records", func(t *testing.T) { testConcurrentRecords(t, newStore(t)) })
}

func member(pubkey string) types.Member {
	return types.Member{
		PubKey:       pubkey,
		PubKeyExpiry: "2025-05-07T09:07:57.379Z",
		Provider:     types.ProviderGoogle,
		Proof:        []byte{1, 2, 3},
		ProofArgs:    map[string]string{"keyId": "kid-1"},
		GroupID:      "pse.dev",
	}
}

func message(text string) types.SignedMessage {
	return types.SignedMessage{
		ID:                    "ignored",
		AnonGroupID:           "pse.dev",
		AnonGroupProvider:     string(types.ProviderGoogle),
		Text:                  text,
		Timestamp:             "2025-05-07T09:07:57Z",
		Signature:             "sig",
		EphemeralPubkey:       "12345",
		EphemeralPubkeyExpiry: "2025-05-08T09:07:57Z",
		Likes:                 9,
	}
}

func testMembers(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.GetMember(ctx, "12345")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.AddMember(ctx, member("12345")))
	got, err := s.GetMember(ctx, "12345")
	require.NoError(t, err)
	require.Equal(t, member("12345"), *got)

	replaced := member("12345")
	replaced.GroupID = "example.org"
	require.NoError(t, s.AddMember(ctx, replaced))
	require.NoError(t, s.AddMember(ctx, member("67890")))
	got, err = s.GetMember(ctx, "12345")
	require.NoError(t, err)
	require.Equal(t, "example.org", got.GroupID)
}

func testMessages(t *testing.T, s storage.Store) {
	ctx := context.Background()
	latest, err := s.LatestMessages(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, latest)

	for i, text := range []string{"one", "two", "three"} {
		msg, err := s.AddMessage(ctx, message(text))
		require.NoError(t, err)
		require.Equal(t, storage.MessageID(uint32(i+1)), msg.ID)
		require.Zero(t, msg.Likes)
	}

	got, err := s.GetMessage(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "two", got.Text)
	require.Equal(t, "2", got.ID)

	_, err = s.GetMessage(ctx, 4)
	require.ErrorIs(t, err, storage.ErrNotFound)

	latest, err = s.LatestMessages(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "3", latest[0].ID)
	assert.Equal(t, "2", latest[1].ID)

	latest, err = s.LatestMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, latest, 3)

	_, err = s.LatestMessages(ctx, 0)
	require.ErrorIs(t, err, storage.ErrInvalidLimit)
}

func testLikes(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.AddMessage(ctx, message("hello"))
	require.NoError(t, err)

	n, err := s.Likes(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, n)

	for want := uint32(1); want <= 3; want++ {
		n, err = s.UpdateLikes(ctx, 1, true)
		require.NoError(t, err)
		require.Equal(t, want, n)
	}
	n, err = s.UpdateLikes(ctx, 1, false)
	require.NoError(t, err)
	require.Equal(t, uint32(2), n)

	n, err = s.Likes(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(2), n)
	msg, err := s.GetMessage(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(2), msg.Likes)

	for i := 0; i < 4; i++ {
		n, err = s.UpdateLikes(ctx, 1, false)
		require.NoError(t, err)
	}
	require.Zero(t, n)

	_, err = s.UpdateLikes(ctx, 7, true)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Likes(ctx, 7)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func record(fp common.Hash) types.VerificationRecord {
	return types.VerificationRecord{
		Fingerprint:   fp,
		Verified:      true,
		RecordedAt:    time.Date(2025, 5, 7, 9, 7, 57, 0, time.UTC),
		SchemaVersion: 1,
		PublicInputs:  []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")},
	}
}

func testRecords(t *testing.T, s storage.Store) {
	ctx := context.Background()
	fp := crypto.Keccak256Hash([]byte("proof"))

	_, err := s.GetVerification(ctx, fp)
	require.ErrorIs(t, err, storage.ErrNotFound)

	rec, created, err := s.RecordVerification(ctx, record(fp))
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, rec.RecordedAt.Equal(record(fp).RecordedAt))

	second := record(fp)
	second.SchemaVersion = 2
	rec, created, err = s.RecordVerification(ctx, second)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, uint8(1), rec.SchemaVersion)

	got, err := s.GetVerification(ctx, fp)
	require.NoError(t, err)
	require.Equal(t, fp, got.Fingerprint)
	require.Equal(t, record(fp).PublicInputs, got.PublicInputs)
	require.Nil(t, got.TxHash)

	tx := common.HexToHash("0xabcdef")
	require.NoError(t, s.SetRecordTransaction(ctx, fp, tx))
	got, err = s.GetVerification(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, got.TxHash)
	require.Equal(t, tx, *got.TxHash)

	err = s.SetRecordTransaction(ctx, common.HexToHash("0x99"), tx)
	require.ErrorIs(t, err, storage.ErrNotFound)

	unstamped := record(crypto.Keccak256Hash([]byte("other")))
	unstamped.RecordedAt = time.Time{}
	rec, created, err = s.RecordVerification(ctx, unstamped)
	require.NoError(t, err)
	require.True(t, created)
	require.False(t, rec.RecordedAt.IsZero())
}

func testConcurrentRecords(t *testing.T, s storage.Store) {
	ctx := context.Background()
	fp := crypto.Keccak256Hash([]byte("concurrent"))

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.RecordVerification(ctx, record(fp))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)
}
