// Package proofs runs circuit inputs through a proving backend.
package proofs

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/metrics"
	"github.com/zkjwt/go-zkjwt-auth/pubsignals"
	"github.com/zkjwt/go-zkjwt-auth/types"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mock/BackendMock.go . Backend

// ErrProvingBackend is returned when the backend fails or yields no proof.
var ErrProvingBackend = errors.New("proving backend failed")

// ErrNoExtractor is returned when the backend can not expose public inputs.
var ErrNoExtractor = errors.New("backend does not expose public inputs")

// Backend proves and verifies the membership circuit with the setup at srsPath.
type Backend interface {
	Prove(ctx context.Context, srsPath string, inputs types.CircuitInputs) ([]byte, error)
	Verify(ctx context.Context, srsPath string, proof []byte) (bool, error)
}

// PublicInputsExtractor is implemented by backends whose proofs carry the
// public witness.
type PublicInputsExtractor interface {
	PublicInputs(proof []byte) ([]*big.Int, error)
}

// Pipeline wraps a Backend with error classification, logging and metrics.
type Pipeline struct {
	backend Backend
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a Pipeline over backend.
func NewPipeline(backend Backend, opts ...Option) *Pipeline {
	p := &Pipeline{backend: backend, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prove returns a non-empty proof for inputs.
func (p *Pipeline) Prove(ctx context.Context, srsPath string, inputs types.CircuitInputs) (types.Proof, error) {
	const op = "prove"
	if err := ctx.Err(); err != nil {
		return nil, types.NewRetryableError(types.KindProving, op, err)
	}

	start := time.Now()
	proof, err := p.backend.Prove(ctx, srsPath, inputs)
	took := time.Since(start)
	if err != nil {
		p.metrics.Proof("error", took)
		p.logger.Warn("proving failed", zap.String("srs", srsPath), zap.Duration("took", took), zap.Error(err))
		if ctx.Err() != nil {
			return nil, types.NewRetryableError(types.KindProving, op, errors.Wrap(ErrProvingBackend, ctx.Err().Error()))
		}
		return nil, types.NewError(types.KindProving, op, errors.Wrap(ErrProvingBackend, err.Error()))
	}
	if len(proof) == 0 {
		p.metrics.Proof("empty", took)
		return nil, types.NewError(types.KindProving, op, errors.Wrap(ErrProvingBackend, "empty proof"))
	}

	p.metrics.Proof("ok", took)
	p.logger.Info("proof generated", zap.String("srs", srsPath), zap.Int("bytes", len(proof)), zap.Duration("took", took))
	return proof, nil
}

// VerifyLocal checks proof with the backend. An empty proof is invalid and
// never reaches the backend.
func (p *Pipeline) VerifyLocal(ctx context.Context, srsPath string, proof types.Proof) (bool, error) {
	if len(proof) == 0 {
		return false, nil
	}
	ok, err := p.backend.Verify(ctx, srsPath, proof)
	if err != nil {
		return false, types.NewError(types.KindLocalVerification, "verify locally", err)
	}
	p.logger.Debug("local verification", zap.Bool("valid", ok))
	return ok, nil
}

// PublicInputs reads the public witness carried by proof. It returns
// ErrNoExtractor if the backend does not implement PublicInputsExtractor.
func (p *Pipeline) PublicInputs(proof types.Proof) (pubsignals.PublicInputs, error) {
	ex, ok := p.backend.(PublicInputsExtractor)
	if !ok {
		return nil, ErrNoExtractor
	}
	ints, err := ex.PublicInputs(proof)
	if err != nil {
		return nil, types.NewError(types.KindInput, "extract public inputs", err)
	}
	return pubsignals.FromInts(ints)
}
