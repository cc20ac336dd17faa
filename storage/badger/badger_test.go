package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zkjwt/go-zkjwt-auth/storage"
	"github.com/zkjwt/go-zkjwt-auth/storage/storagetest"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := Open("", InMemory())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, types.SignedMessage{Text: "one"})
	require.NoError(t, err)
	require.NoError(t, s.AddMember(ctx, types.Member{PubKey: "12345"}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	msg, err := s.AddMessage(ctx, types.SignedMessage{Text: "two"})
	require.NoError(t, err)
	require.Equal(t, "2", msg.ID)
	_, err = s.GetMember(ctx, "12345")
	require.NoError(t, err)
}

func TestMessageKeyOrder(t *testing.T) {
	// ids sort numerically as keys
	require.Less(t, string(messageKey(9)), string(messageKey(10)))
	require.Less(t, string(messageKey(255)), string(messageKey(256)))
}

func TestCancelledContext(t *testing.T) {
	s, err := Open("", InMemory())
	require.NoError(t, err)
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.AddMessage(ctx, types.SignedMessage{})
	require.ErrorIs(t, err, context.Canceled)
}
