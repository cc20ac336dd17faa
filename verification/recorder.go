package verification

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/types"
	"go.uber.org/zap"
)

// TransactionBackend sends transactions and waits for their receipts.
type TransactionBackend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Recorder writes verified public inputs to the proof manager contract.
type Recorder struct {
	address  common.Address
	backend  TransactionBackend
	contract *bind.BoundContract
	auth     *bind.TransactOpts
	logger   *zap.Logger
}

// RecorderOption configures Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger.
func WithRecorderLogger(l *zap.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

// NewRecorder creates a Recorder for the proof manager at address that signs
// with auth.
func NewRecorder(address common.Address, backend TransactionBackend, auth *bind.TransactOpts, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		address:  address,
		backend:  backend,
		contract: bind.NewBoundContract(address, ProofManagerABI, backend, backend, backend),
		auth:     auth,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record sends recordPublicInputsOfZkJwtProof and waits until it is mined.
// It returns the transaction hash.
func (r *Recorder) Record(ctx context.Context, proof []byte, publicInputs []common.Hash) (common.Hash, error) {
	const op = "record public inputs"
	if r.auth == nil {
		return common.Hash{}, types.NewError(types.KindRecording, op, errors.New("no transaction signer configured"))
	}
	opts := *r.auth
	opts.Context = ctx

	w := words(publicInputs)
	tx, err := r.contract.Transact(&opts, recordMethod, proof, w, publicInputsOfZkJwtProof{Values: w})
	if err != nil {
		if classified := ClassifyRevert(op, err); types.KindOf(classified) == types.KindOnChainRejection && !types.IsRetryable(classified) {
			return common.Hash{}, types.NewError(types.KindRecording, op, classified)
		}
		return common.Hash{}, types.NewRetryableError(types.KindRecording, op, errors.WithStack(err))
	}
	r.logger.Info("record transaction sent", zap.String("tx", tx.Hash().Hex()), zap.String("contract", r.address.Hex()))

	receipt, err := bind.WaitMined(ctx, r.backend, tx)
	if err != nil {
		return tx.Hash(), types.NewRetryableError(types.KindRecording, op, errors.Wrap(err, "waiting for receipt"))
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return tx.Hash(), types.NewError(types.KindRecording, op,
			errors.Errorf("transaction %s failed in block %v", tx.Hash().Hex(), receipt.BlockNumber))
	}
	return tx.Hash(), nil
}
