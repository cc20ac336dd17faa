// Package auth verifies zk-JWT membership proofs and records them once per
// fingerprint.
package auth

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/constants"
	"github.com/zkjwt/go-zkjwt-auth/metrics"
	"github.com/zkjwt/go-zkjwt-auth/proofs"
	"github.com/zkjwt/go-zkjwt-auth/pubsignals"
	"github.com/zkjwt/go-zkjwt-auth/storage"
	"github.com/zkjwt/go-zkjwt-auth/types"
	"github.com/zkjwt/go-zkjwt-auth/verification"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

//go:generate mockgen -destination=mock/onChainVerifierMock.go . OnChainVerifier,OnChainRecorder

// ErrLocalVerification is returned when the proving backend rejects a proof.
var ErrLocalVerification = errors.New("proof does not verify locally")

// State is the stage a verification attempt reached.
type State string

const (
	StateBuilt           State = "built"
	StateLocallyVerified State = "locally_verified"
	StateSubmitted       State = "submitted"
	StateVerified        State = "verified"
	StateRejectedInput   State = "rejected_input"
	StateRejectedLocally State = "rejected_locally"
	StateRejectedOnChain State = "rejected_onchain"
)

// OnChainVerifier checks a proof against the verification contract.
type OnChainVerifier interface {
	Verify(ctx context.Context, proof []byte, publicInputs []common.Hash) (bool, error)
}

// OnChainRecorder stores verified public inputs on chain and returns the
// transaction hash.
type OnChainRecorder interface {
	Record(ctx context.Context, proof []byte, publicInputs []common.Hash) (common.Hash, error)
}

// Store is the part of the external store the verifier writes to.
type Store interface {
	storage.RecordStore
	storage.MemberStore
}

// VerifyRequest is one verification attempt.
type VerifyRequest struct {
	SRSPath      string
	Proof        types.Proof
	PublicInputs pubsignals.PublicInputs
	// Claimed, when set, is re-encoded and must equal PublicInputs.
	Claimed *pubsignals.Values
	// Member is registered after a successful verification.
	Member *types.Member
}

// Result describes how far an attempt got.
type Result struct {
	State       State
	Fingerprint common.Hash
	Record      *types.VerificationRecord
	// Err is the reason for a rejected state.
	Err error
	// RecordingErr is set when the proof verified but recording failed.
	// Recording can be repeated with Verifier.Record.
	RecordingErr error
}

// Verified reports whether the proof was accepted on chain.
func (r *Result) Verified() bool {
	return r.State == StateVerified
}

type config struct {
	schema         pubsignals.Schema
	onChainTimeout time.Duration
	recorder       OnChainRecorder
	now            func() time.Time
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

// Option configures Verifier and Prover.
type Option func(*config)

// WithSchema sets the public input layout. SchemaV1 is the default.
func WithSchema(s pubsignals.Schema) Option {
	return func(c *config) {
		c.schema = s
	}
}

// WithOnChainTimeout bounds every on-chain call.
func WithOnChainTimeout(d time.Duration) Option {
	return func(c *config) {
		c.onChainTimeout = d
	}
}

// WithRecorder also records verified proofs on chain.
func WithRecorder(r OnChainRecorder) Option {
	return func(c *config) {
		c.recorder = r
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics counts attempts by terminal state.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

func newConfig(opts []Option) config {
	c := config{
		schema:         pubsignals.SchemaV1,
		onChainTimeout: constants.DefaultOnChainTimeout,
		now:            time.Now,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Verifier runs the two-stage verification of a proof: locally with the
// proving backend, then on chain. A verified proof is recorded in the store
// exactly once per fingerprint.
type Verifier struct {
	config
	pipeline *proofs.Pipeline
	onChain  OnChainVerifier
	store    Store

	// sending holds one on-chain record transaction per fingerprint.
	sending singleflight.Group
}

// NewVerifier creates a Verifier.
func NewVerifier(pipeline *proofs.Pipeline, onChain OnChainVerifier, store Store, opts ...Option) *Verifier {
	return &Verifier{
		config:   newConfig(opts),
		pipeline: pipeline,
		onChain:  onChain,
		store:    store,
	}
}

// Verify runs one attempt. The returned error is Result.Err; a recording
// failure after a successful verification is reported in
// Result.RecordingErr only.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) (*Result, error) {
	res := &Result{State: StateBuilt}
	defer func() {
		v.metrics.Verification(string(res.State))
	}()
	reject := func(state State, err error) (*Result, error) {
		res.State, res.Err = state, err
		v.logger.Info("proof rejected", zap.String("state", string(state)), zap.Error(err))
		return res, err
	}

	if err := v.crossCheck(req); err != nil {
		return reject(StateRejectedInput, err)
	}

	ok, err := v.pipeline.VerifyLocal(ctx, req.SRSPath, req.Proof)
	if err == nil && !ok {
		err = types.NewError(types.KindLocalVerification, "verify locally", ErrLocalVerification)
	}
	if err != nil {
		return reject(StateRejectedLocally, err)
	}
	res.State = StateLocallyVerified
	v.logger.Debug("proof verified locally", zap.Int("bytes", len(req.Proof)))

	res.State = StateSubmitted
	ok, err = v.submit(ctx, req)
	if err != nil {
		return reject(StateRejectedOnChain, err)
	}
	if !ok {
		return reject(StateRejectedOnChain, types.NewError(types.KindOnChainRejection, "verify on chain", verification.ErrOnChainFalse))
	}

	res.State = StateVerified
	res.Fingerprint = Fingerprint(req.Proof, req.PublicInputs)
	v.logger.Info("proof verified", zap.String("fingerprint", res.Fingerprint.Hex()))

	res.Record, res.RecordingErr = v.record(ctx, res.Fingerprint, req.Proof, req.PublicInputs)
	if res.RecordingErr == nil && req.Member != nil {
		if err := v.store.AddMember(ctx, *req.Member); err != nil {
			res.RecordingErr = types.NewRetryableError(types.KindRecording, "register member", err)
		}
	}
	if res.RecordingErr != nil {
		v.logger.Warn("recording failed", zap.String("fingerprint", res.Fingerprint.Hex()), zap.Error(res.RecordingErr))
	}
	return res, nil
}

// Record stores an already verified proof. It is idempotent and meant for
// retrying a Result.RecordingErr.
func (v *Verifier) Record(ctx context.Context, proof types.Proof, publicInputs pubsignals.PublicInputs) (*types.VerificationRecord, error) {
	return v.record(ctx, Fingerprint(proof, publicInputs), proof, publicInputs)
}

func (v *Verifier) crossCheck(req VerifyRequest) error {
	const op = "check public inputs"
	if len(req.PublicInputs) != v.schema.Len() {
		return types.NewError(types.KindEncodingMismatch, op, errors.Wrapf(pubsignals.ErrEncodingMismatch,
			"schema v%d has %d words, got %d", v.schema.Version, v.schema.Len(), len(req.PublicInputs)))
	}

	if req.Claimed != nil {
		c := req.Claimed
		want, err := v.schema.Encode(c.Modulus, c.Domain, c.EphemeralPubkey, c.Expiry)
		if err != nil {
			return err
		}
		if err := pubsignals.Compare(want, req.PublicInputs); err != nil {
			return err
		}
	}

	embedded, err := v.pipeline.PublicInputs(req.Proof)
	if errors.Is(err, proofs.ErrNoExtractor) {
		return nil
	}
	if err != nil {
		return err
	}
	return pubsignals.Compare(embedded, req.PublicInputs)
}

func (v *Verifier) submit(ctx context.Context, req VerifyRequest) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, v.onChainTimeout)
	defer cancel()

	ok, err := v.onChain.Verify(ctx, req.Proof, req.PublicInputs)
	if err == nil {
		return ok, nil
	}
	if ctx.Err() != nil {
		return false, types.NewRetryableError(types.KindOnChainRejection, "verify on chain", errors.Wrap(err, ctx.Err().Error()))
	}
	if types.KindOf(err) == types.KindUnknown {
		err = verification.ClassifyRevert("verify on chain", err)
	}
	return false, err
}

func (v *Verifier) record(ctx context.Context, fp common.Hash, proof types.Proof, publicInputs pubsignals.PublicInputs) (*types.VerificationRecord, error) {
	const op = "record verification"
	rec, created, err := v.store.RecordVerification(ctx, types.VerificationRecord{
		Fingerprint:   fp,
		Verified:      true,
		RecordedAt:    v.now().UTC(),
		SchemaVersion: v.schema.Version,
		PublicInputs:  publicInputs,
	})
	if err != nil {
		return nil, types.NewRetryableError(types.KindRecording, op, err)
	}
	if !created {
		v.logger.Debug("verification already recorded", zap.String("fingerprint", fp.Hex()))
	}

	if v.recorder == nil || rec.TxHash != nil {
		return &rec, nil
	}
	tx, err, _ := v.sending.Do(fp.Hex(), func() (interface{}, error) {
		return v.sendRecord(ctx, fp, proof, publicInputs)
	})
	if err != nil {
		return &rec, err
	}
	hash := tx.(common.Hash)
	rec.TxHash = &hash
	return &rec, nil
}

// sendRecord broadcasts the record transaction unless a caller that finished
// earlier already attached one.
func (v *Verifier) sendRecord(ctx context.Context, fp common.Hash, proof types.Proof, publicInputs pubsignals.PublicInputs) (common.Hash, error) {
	const op = "record verification on chain"
	stored, err := v.store.GetVerification(ctx, fp)
	if err != nil {
		return common.Hash{}, types.NewRetryableError(types.KindRecording, op, err)
	}
	if stored.TxHash != nil {
		return *stored.TxHash, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, v.onChainTimeout)
	defer cancel()
	tx, err := v.recorder.Record(sendCtx, proof, publicInputs)
	if err != nil {
		if types.KindOf(err) != types.KindRecording {
			err = types.NewRetryableError(types.KindRecording, op, err)
		}
		return common.Hash{}, err
	}
	v.logger.Info("verification recorded on chain", zap.String("fingerprint", fp.Hex()), zap.String("tx", tx.Hex()))
	if err := v.store.SetRecordTransaction(ctx, fp, tx); err != nil {
		return tx, types.NewRetryableError(types.KindRecording, op, err)
	}
	return tx, nil
}

// Fingerprint identifies a (proof, public inputs) pair:
// keccak256(uint64_be(len(proof)) || proof || inputs...).
func Fingerprint(proof []byte, publicInputs []common.Hash) common.Hash {
	parts := make([][]byte, 0, len(publicInputs)+2)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(proof)))
	parts = append(parts, n[:], proof)
	for i := range publicInputs {
		parts = append(parts, publicInputs[i][:])
	}
	return crypto.Keccak256Hash(parts...)
}
