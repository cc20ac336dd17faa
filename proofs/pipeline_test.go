package proofs

import (
	"context"
	"math/big"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	mock_proofs "github.com/zkjwt/go-zkjwt-auth/proofs/mock"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

const srsPath = "/tmp/srs.bin"

var inputs = types.CircuitInputs{types.SlotDomainLen: {"11"}}

func TestProve(t *testing.T) {
	tests := []struct {
		name        string
		prepareMock func(m *mock_proofs.MockBackend)
		want        types.Proof
		wantErr     error
	}{
		{
			name: "proof",
			prepareMock: func(m *mock_proofs.MockBackend) {
				m.EXPECT().Prove(gomock.Any(), srsPath, inputs).Return([]byte{1, 2, 3}, nil)
			},
			want: types.Proof{1, 2, 3},
		},
		{
			name: "backend failure",
			prepareMock: func(m *mock_proofs.MockBackend) {
				m.EXPECT().Prove(gomock.Any(), srsPath, inputs).Return(nil, errors.New("constraint 17 not satisfied"))
			},
			wantErr: ErrProvingBackend,
		},
		{
			name: "empty proof",
			prepareMock: func(m *mock_proofs.MockBackend) {
				m.EXPECT().Prove(gomock.Any(), srsPath, inputs).Return([]byte{}, nil)
			},
			wantErr: ErrProvingBackend,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			m := mock_proofs.NewMockBackend(ctrl)
			tt.prepareMock(m)

			proof, err := NewPipeline(m).Prove(context.Background(), srsPath, inputs)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Equal(t, types.KindProving, types.KindOf(err))
				require.False(t, types.IsRetryable(err))
				require.Empty(t, proof)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, proof)
		})
	}
}

func TestProveCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	m := mock_proofs.NewMockBackend(ctrl)
	m.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPipeline(m).Prove(ctx, srsPath, inputs)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, types.KindProving, types.KindOf(err))
	require.True(t, types.IsRetryable(err))
}

func TestVerifyLocal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	m := mock_proofs.NewMockBackend(ctrl)
	p := NewPipeline(m)

	m.EXPECT().Verify(gomock.Any(), srsPath, []byte{1}).Return(true, nil)
	ok, err := p.VerifyLocal(context.Background(), srsPath, types.Proof{1})
	require.NoError(t, err)
	require.True(t, ok)

	m.EXPECT().Verify(gomock.Any(), srsPath, []byte{2}).Return(false, nil)
	ok, err = p.VerifyLocal(context.Background(), srsPath, types.Proof{2})
	require.NoError(t, err)
	require.False(t, ok)

	m.EXPECT().Verify(gomock.Any(), srsPath, []byte{3}).Return(false, errors.New("bad srs"))
	_, err = p.VerifyLocal(context.Background(), srsPath, types.Proof{3})
	require.Equal(t, types.KindLocalVerification, types.KindOf(err))

	// empty proofs never reach the backend
	ok, err = p.VerifyLocal(context.Background(), srsPath, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

type extractingBackend struct {
	*mock_proofs.MockBackend
	words []*big.Int
}

func (b extractingBackend) PublicInputs([]byte) ([]*big.Int, error) {
	return b.words, nil
}

func TestPublicInputs(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	m := mock_proofs.NewMockBackend(ctrl)

	_, err := NewPipeline(m).PublicInputs(types.Proof{1})
	require.ErrorIs(t, err, ErrNoExtractor)

	p := NewPipeline(extractingBackend{MockBackend: m, words: []*big.Int{big.NewInt(7)}})
	words, err := p.PublicInputs(types.Proof{1})
	require.NoError(t, err)
	require.Len(t, words, 1)
	require.Equal(t, int64(7), words[0].Big().Int64())
}
