package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/zkjwt/go-zkjwt-auth/storage"
	"github.com/zkjwt/go-zkjwt-auth/storage/storagetest"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := New(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestLayout(t *testing.T) {
	dir := t.TempDir()
	created := time.Unix(1746608877, 0)
	s, err := New(dir, WithClock(func() time.Time { return created }))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.AddMember(ctx, types.Member{PubKey: "12345", GroupID: "pse.dev"}))
	_, err = s.AddMessage(ctx, types.SignedMessage{Text: "hello"})
	require.NoError(t, err)
	_, err = s.UpdateLikes(ctx, 1, true)
	require.NoError(t, err)

	var members map[string]types.Member
	readFile(t, filepath.Join(dir, "members.json"), &members)
	require.Equal(t, "pse.dev", members["12345"].GroupID)

	var index map[string]indexEntry
	readFile(t, filepath.Join(dir, "messages", "index.json"), &index)
	require.Equal(t, indexEntry{Filename: "1.txt", CreatedAt: "1746608877", Likes: 1}, index["1"])

	var msg types.SignedMessage
	readFile(t, filepath.Join(dir, "messages", "1.txt"), &msg)
	require.Equal(t, "1", msg.ID)
	require.Equal(t, uint32(1), msg.Likes)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(dir, "messages"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRecordIsLinkedWhole(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()
	fp := common.HexToHash("0xf00d")
	records := filepath.Join(dir, "records")

	// leftover of a write that never reached the link
	stray := filepath.Join(records, "."+fp.Hex()+".json.1234")
	require.NoError(t, os.WriteFile(stray, []byte(`{"fingerpr`), 0o644))

	rec, created, err := s.RecordVerification(ctx, types.VerificationRecord{Fingerprint: fp, Verified: true})
	require.NoError(t, err)
	require.True(t, created)

	var onDisk types.VerificationRecord
	readFile(t, filepath.Join(records, fp.Hex()+".json"), &onDisk)
	require.Equal(t, fp, onDisk.Fingerprint)
	require.True(t, onDisk.Verified)

	again, created, err := s.RecordVerification(ctx, types.VerificationRecord{Fingerprint: fp, Verified: true, RecordedAt: time.Unix(1, 0)})
	require.NoError(t, err)
	require.False(t, created)
	require.True(t, rec.RecordedAt.Equal(again.RecordedAt))

	entries, err := os.ReadDir(records)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.ElementsMatch(t, []string{fp.Hex() + ".json", filepath.Base(stray)}, names)
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := New(dir)
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, types.SignedMessage{Text: "one"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(dir)
	require.NoError(t, err)
	msg, err := s.AddMessage(ctx, types.SignedMessage{Text: "two"})
	require.NoError(t, err)
	require.Equal(t, "2", msg.ID)
}

func TestCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "messages", "index.json"), []byte("{"), 0o644))

	_, err = s.LatestMessages(context.Background(), 1)
	require.Error(t, err)
	require.NotErrorIs(t, err, storage.ErrNotFound)
}

func readFile(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}
