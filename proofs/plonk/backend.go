package plonk

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/big"
	"os"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/kzg"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test/unsafekzg"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/types"
	"go.uber.org/zap"
)

// LagrangeSuffix is appended to the SRS path to locate the Lagrange form.
const LagrangeSuffix = ".lagrange"

type setup struct {
	pk plonk.ProvingKey
	vk plonk.VerifyingKey
}

// Backend proves with keys derived from the SRS files at the given path.
// Setups are cached per path.
type Backend struct {
	logger *zap.Logger

	mu     sync.Mutex
	setups map[string]*setup
}

// Option configures Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) {
		b.logger = l
	}
}

// NewBackend creates a Backend.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{logger: zap.NewNop(), setups: map[string]*setup{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) setup(srsPath string) (*setup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.setups[srsPath]; ok {
		return s, nil
	}
	ccs, err := ConstraintSystem()
	if err != nil {
		return nil, err
	}
	canonical, err := readSRS(srsPath)
	if err != nil {
		return nil, err
	}
	lagrange, err := readSRS(srsPath + LagrangeSuffix)
	if err != nil {
		return nil, err
	}
	pk, vk, err := plonk.Setup(ccs, canonical, lagrange)
	if err != nil {
		return nil, errors.Wrapf(err, "plonk setup with srs %s", srsPath)
	}
	s := &setup{pk: pk, vk: vk}
	b.setups[srsPath] = s
	b.logger.Info("plonk setup loaded",
		zap.String("srs", srsPath),
		zap.Int("constraints", ccs.GetNbConstraints()))
	return s, nil
}

// Prove implements proofs.Backend.
func (b *Backend) Prove(ctx context.Context, srsPath string, inputs types.CircuitInputs) ([]byte, error) {
	a, err := assignment(inputs)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to assign circuit inputs")
	}
	s, err := b.setup(srsPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := frontend.NewWitness(a, ecc.BN254.ScalarField())
	if err != nil {
		return nil, errors.Wrap(err, "witness creation failed")
	}
	public, err := full.Public()
	if err != nil {
		return nil, errors.Wrap(err, "public witness")
	}
	ccs, err := ConstraintSystem()
	if err != nil {
		return nil, err
	}
	proof, err := plonk.Prove(ccs, s.pk, full)
	if err != nil {
		return nil, errors.Wrap(err, "proof creation failed")
	}

	pub, err := public.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "public witness to buffer failed")
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(pub))); err != nil {
		return nil, errors.WithStack(err)
	}
	buf.Write(pub)
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "proof to buffer failed")
	}
	return buf.Bytes(), nil
}

// Verify implements proofs.Backend. Bytes that do not decode to a proof are
// an invalid proof, not an error.
func (b *Backend) Verify(ctx context.Context, srsPath string, raw []byte) (bool, error) {
	s, err := b.setup(srsPath)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	public, proof, err := split(raw)
	if err != nil {
		b.logger.Debug("undecodable proof", zap.Error(err))
		return false, nil
	}
	if err := plonk.Verify(proof, s.vk, public); err != nil {
		b.logger.Debug("proof rejected", zap.Error(err))
		return false, nil
	}
	return true, nil
}

// PublicInputs implements proofs.PublicInputsExtractor.
func (b *Backend) PublicInputs(raw []byte) ([]*big.Int, error) {
	public, _, err := split(raw)
	if err != nil {
		return nil, err
	}
	vec, ok := public.Vector().(fr.Vector)
	if !ok {
		return nil, errors.New("public witness is not over bn254")
	}
	out := make([]*big.Int, len(vec))
	for i := range vec {
		out[i] = vec[i].BigInt(new(big.Int))
	}
	return out, nil
}

func split(raw []byte) (witness.Witness, plonk.Proof, error) {
	if len(raw) < 4 {
		return nil, nil, errors.New("proof too short")
	}
	n := binary.BigEndian.Uint32(raw)
	if uint64(n) > uint64(len(raw)-4) {
		return nil, nil, errors.New("public witness length exceeds proof")
	}
	public, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	if err := public.UnmarshalBinary(raw[4 : 4+n]); err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse public witness")
	}
	proof := plonk.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(raw[4+n:])); err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse the proof")
	}
	return public, proof, nil
}

func readSRS(path string) (kzg.SRS, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open srs")
	}
	defer f.Close()

	srs := kzg.NewSRS(ecc.BN254)
	if _, err := srs.ReadFrom(f); err != nil {
		return nil, errors.Wrapf(err, "failed to read srs %s", path)
	}
	return srs, nil
}

// WriteSRS stores canonical at path and lagrange next to it.
func WriteSRS(path string, canonical, lagrange kzg.SRS) error {
	for p, srs := range map[string]kzg.SRS{path: canonical, path + LagrangeSuffix: lagrange} {
		f, err := os.Create(p)
		if err != nil {
			return errors.Wrap(err, "failed to create srs file")
		}
		if _, err := srs.WriteTo(f); err != nil {
			f.Close()
			return errors.Wrapf(err, "failed to write srs %s", p)
		}
		if err := f.Close(); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// GenerateDevSRS writes an SRS sized for the binding circuit from a known
// toxic waste. Proofs made with it are not sound; use it for tests and local
// development only.
func GenerateDevSRS(path string) error {
	ccs, err := ConstraintSystem()
	if err != nil {
		return err
	}
	canonical, lagrange, err := unsafekzg.NewSRS(ccs)
	if err != nil {
		return errors.Wrap(err, "failed to generate srs")
	}
	return WriteSRS(path, canonical, lagrange)
}
