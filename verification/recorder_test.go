package verification

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

// txBackend accepts transactions and mines them immediately. Methods that the
// recorder must not need are left to the nil embedded interface.
type txBackend struct {
	bind.ContractBackend

	mu      sync.Mutex
	sent    []*ethtypes.Transaction
	status  uint64
	sendErr error
}

func (b *txBackend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *txBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.sent {
		if tx.Hash() == hash {
			return &ethtypes.Receipt{Status: b.status, TxHash: hash, BlockNumber: big.NewInt(7)}, nil
		}
	}
	return nil, ethereum.NotFound
}

func transactor(t *testing.T) *bind.TransactOpts {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1337))
	require.NoError(t, err)
	auth.Nonce = big.NewInt(0)
	auth.GasLimit = 500_000
	auth.GasPrice = big.NewInt(1_000_000_000)
	return auth
}

func TestRecorderRecord(t *testing.T) {
	backend := &txBackend{status: ethtypes.ReceiptStatusSuccessful}
	r := NewRecorder(mockContractAddress, backend, transactor(t))
	proof := []byte{1, 2, 3}

	hash, err := r.Record(context.Background(), proof, testInputs())
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	require.Equal(t, tx.Hash(), hash)
	require.Equal(t, mockContractAddress, *tx.To())

	method, err := ProofManagerABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	require.Equal(t, recordMethod, method.Name)
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 3)
	require.Equal(t, proof, args[0])
	require.Equal(t, [][32]byte{testInputs()[0], testInputs()[1]}, args[1])
}

func TestRecorderFailedReceipt(t *testing.T) {
	backend := &txBackend{status: ethtypes.ReceiptStatusFailed}
	_, err := NewRecorder(mockContractAddress, backend, transactor(t)).Record(context.Background(), []byte{1}, testInputs())
	require.Error(t, err)
	require.Equal(t, types.KindRecording, types.KindOf(err))
	require.False(t, types.IsRetryable(err))
}

func TestRecorderSendErrors(t *testing.T) {
	backend := &txBackend{sendErr: revertErr{data: "0xfa066593"}}
	_, err := NewRecorder(mockContractAddress, backend, transactor(t)).Record(context.Background(), []byte{1}, testInputs())
	require.ErrorIs(t, err, ErrOnChainRejected)
	require.Equal(t, types.KindRecording, types.KindOf(err))
	require.False(t, types.IsRetryable(err))

	backend = &txBackend{sendErr: context.DeadlineExceeded}
	_, err = NewRecorder(mockContractAddress, backend, transactor(t)).Record(context.Background(), []byte{1}, testInputs())
	require.Equal(t, types.KindRecording, types.KindOf(err))
	require.True(t, types.IsRetryable(err))

	_, err = NewRecorder(mockContractAddress, backend, nil).Record(context.Background(), []byte{1}, testInputs())
	require.Equal(t, types.KindRecording, types.KindOf(err))
}
