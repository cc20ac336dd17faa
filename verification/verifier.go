// Package verification talks to the on-chain proof verifier and proof
// manager contracts.
package verification

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

//go:generate mockgen -destination=mock/blockchainCallerMock.go . BlockchainCaller

const errCallArgumentEncodedErrorMessage = "wrong arguments were provided"

// BlockchainCaller is an interface to call smart contract
type BlockchainCaller interface {
	// Call smart contract. For read operation.
	CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error)
}

// Dial connects to an RPC endpoint. The client is a BlockchainCaller and a
// TransactionBackend.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, types.NewRetryableError(types.KindOnChainRejection, "dial rpc", errors.WithStack(err))
	}
	return c, nil
}

// ContractVerifier calls a view method with signature (bytes, bytes32[]) returns (bool).
type ContractVerifier struct {
	address common.Address
	caller  BlockchainCaller
	abi     abi.ABI
	method  string
}

// NewContractVerifier verifies through verify(bytes,bytes32[]) of the
// verifier contract at address.
func NewContractVerifier(address common.Address, caller BlockchainCaller) *ContractVerifier {
	return &ContractVerifier{address: address, caller: caller, abi: VerifierABI, method: verifyMethod}
}

// NewProofManagerVerifier verifies through verifyZkJwtProof of the proof
// manager contract at address.
func NewProofManagerVerifier(address common.Address, caller BlockchainCaller) *ContractVerifier {
	return &ContractVerifier{address: address, caller: caller, abi: ProofManagerABI, method: verifyZkJwtProofMethod}
}

// Address returns the contract address.
func (v *ContractVerifier) Address() common.Address {
	return v.address
}

// Verify runs the on-chain verifier. A revert is returned as a classified
// error; a false answer is (false, nil).
func (v *ContractVerifier) Verify(ctx context.Context, proof []byte, publicInputs []common.Hash) (bool, error) {
	op := "call " + v.method
	data, err := v.abi.Pack(v.method, proof, words(publicInputs))
	if data == nil {
		return false, types.NewError(types.KindInput, op,
			errors.WithMessagef(err, "%s function: %s", errCallArgumentEncodedErrorMessage, v.method))
	}

	res, err := v.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &v.address,
		Data: data,
	}, nil)
	if err != nil {
		return false, ClassifyRevert(op, err)
	}

	outputs, err := v.abi.Unpack(v.method, res)
	if err != nil {
		return false, types.NewError(types.KindOnChainRejection, op, errors.Wrap(err, "failed to unpack result"))
	}
	if len(outputs) != 1 {
		return false, types.NewError(types.KindOnChainRejection, op, errors.Errorf("expected 1 output, got %d", len(outputs)))
	}
	ok, isBool := outputs[0].(bool)
	if !isBool {
		return false, types.NewError(types.KindOnChainRejection, op, errors.New("failed unmarshal to bool"))
	}
	return ok, nil
}

func words(hs []common.Hash) [][32]byte {
	out := make([][32]byte, len(hs))
	for i, h := range hs {
		out[i] = h
	}
	return out
}
