package verification

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/zkjwt/go-zkjwt-auth/types"
	mock_verification "github.com/zkjwt/go-zkjwt-auth/verification/mock"
)

var mockContractAddress = common.HexToAddress("0xE4F771f86B34BF7B323d9130c385117Ec39377c3")

// abi types.
var (
	boolTy, _ = abi.NewType("bool", "", nil)
)

type revertErr struct {
	data interface{}
}

func (e revertErr) Error() string          { return "execution reverted" }
func (e revertErr) ErrorData() interface{} { return e.data }

func packBool(t *testing.T, v bool) []byte {
	args := abi.Arguments{{Type: boolTy, Name: ""}}
	b, err := args.Pack(v)
	require.NoError(t, err)
	return b
}

func testInputs() []common.Hash {
	return []common.Hash{common.BigToHash(big.NewInt(1)), common.BigToHash(big.NewInt(2))}
}

func TestContractVerifierVerify(t *testing.T) {
	proof := []byte{0xde, 0xad, 0xbe, 0xef}

	tests := []struct {
		name        string
		prepareMock func(mbc *mock_verification.MockBlockchainCaller, t *testing.T)
		expected    bool
		wantErr     error
		kind        types.Kind
		retryable   bool
	}{
		{
			name: "verifier accepts",
			prepareMock: func(mbc *mock_verification.MockBlockchainCaller, t *testing.T) {
				mbc.EXPECT().CallContract(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
						require.Nil(t, block)
						require.Equal(t, mockContractAddress, *msg.To)
						require.Equal(t, "0xea50d0e4", hexutil.Encode(msg.Data[:4]))

						args, err := VerifierABI.Methods["verify"].Inputs.Unpack(msg.Data[4:])
						require.NoError(t, err)
						require.Equal(t, proof, args[0])
						require.Equal(t, [][32]byte{testInputs()[0], testInputs()[1]}, args[1])
						return packBool(t, true), nil
					})
			},
			expected: true,
		},
		{
			name: "verifier answers false",
			prepareMock: func(mbc *mock_verification.MockBlockchainCaller, t *testing.T) {
				mbc.EXPECT().CallContract(gomock.Any(), gomock.Any(), gomock.Any()).Return(packBool(t, false), nil)
			},
			expected: false,
		},
		{
			name: "known revert",
			prepareMock: func(mbc *mock_verification.MockBlockchainCaller, t *testing.T) {
				mbc.EXPECT().CallContract(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, revertErr{data: "0xed74ac0a"})
			},
			wantErr: ErrOnChainRejected,
			kind:    types.KindOnChainRejection,
		},
		{
			name: "unknown revert",
			prepareMock: func(mbc *mock_verification.MockBlockchainCaller, t *testing.T) {
				mbc.EXPECT().CallContract(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, revertErr{data: "0xd0e50be7"})
			},
			wantErr: ErrUnclassifiedRevert,
			kind:    types.KindOnChainRejection,
		},
		{
			name: "transport error",
			prepareMock: func(mbc *mock_verification.MockBlockchainCaller, t *testing.T) {
				mbc.EXPECT().CallContract(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, context.DeadlineExceeded)
			},
			wantErr:   context.DeadlineExceeded,
			kind:      types.KindOnChainRejection,
			retryable: true,
		},
		{
			name: "no contract code",
			prepareMock: func(mbc *mock_verification.MockBlockchainCaller, t *testing.T) {
				mbc.EXPECT().CallContract(gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte{}, nil)
			},
			kind: types.KindOnChainRejection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			m := mock_verification.NewMockBlockchainCaller(ctrl)
			tt.prepareMock(m, t)

			ok, err := NewContractVerifier(mockContractAddress, m).Verify(context.Background(), proof, testInputs())
			if tt.kind == types.KindUnknown {
				require.NoError(t, err)
				require.Equal(t, tt.expected, ok)
				return
			}
			require.False(t, ok)
			require.Equal(t, tt.kind, types.KindOf(err))
			require.Equal(t, tt.retryable, types.IsRetryable(err))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestProofManagerVerifierUsesVerifyZkJwtProof(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	m := mock_verification.NewMockBlockchainCaller(ctrl)
	m.EXPECT().CallContract(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			require.True(t, bytes.HasPrefix(msg.Data, hexutil.MustDecode("0x9f652bc9")))
			return packBool(t, true), nil
		})

	ok, err := NewProofManagerVerifier(mockContractAddress, m).Verify(context.Background(), []byte{1}, testInputs())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestClassifyRevert(t *testing.T) {
	known := map[string]string{
		"0xed74ac0a": "ProofLengthWrong",
		"0xfa066593": "PublicInputsLengthWrong",
		"0x9fc3a218": "SumcheckFailed",
		"0xa5d82e8a": "ShpleminiFailed",
		"0xa2a2ac83": "ConsistencyCheckFailed",
		"0x835eb8f7": "GeminiChallengeInSubgroup",
	}
	for selector, name := range known {
		t.Run(name, func(t *testing.T) {
			err := ClassifyRevert("verify", revertErr{data: selector})
			var re *RevertError
			require.True(t, errors.As(err, &re))
			require.Equal(t, name, re.Name)
			require.Equal(t, selector, re.Selector.String())
			require.ErrorIs(t, err, ErrOnChainRejected)
			require.False(t, types.IsRetryable(err))
		})
	}

	// selector followed by abi-encoded arguments, as raw bytes
	err := ClassifyRevert("verify", revertErr{data: append(hexutil.MustDecode("0xa5d82e8a"), make([]byte, 32)...)})
	require.ErrorIs(t, err, ErrOnChainRejected)

	err = ClassifyRevert("verify", revertErr{data: "0x01"})
	require.ErrorIs(t, err, ErrUnclassifiedRevert)

	err = ClassifyRevert("verify", revertErr{data: 42})
	require.True(t, types.IsRetryable(err))

	require.NoError(t, ClassifyRevert("verify", nil))
	require.Len(t, knownReverts, 6)
}
