package auth

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/circuits"
	"github.com/zkjwt/go-zkjwt-auth/constants"
	"github.com/zkjwt/go-zkjwt-auth/jwks"
	"github.com/zkjwt/go-zkjwt-auth/proofs"
	"github.com/zkjwt/go-zkjwt-auth/pubsignals"
	"github.com/zkjwt/go-zkjwt-auth/token"
	"github.com/zkjwt/go-zkjwt-auth/types"
	"go.uber.org/zap"
)

// KeyResolver returns the signing key kid of issuer.
type KeyResolver interface {
	Resolve(ctx context.Context, issuer, kid string) (*jwks.SigningKey, error)
}

// ProveRequest is the holder side input of a membership proof.
type ProveRequest struct {
	Token     string
	Ephemeral types.EphemeralKey
	Domain    string
	SRSPath   string
	// MaxSignedDataLength defaults to constants.DefaultMaxSignedDataLength.
	MaxSignedDataLength int
	// Precompute enables the SHA-256 midstate for the token prefix.
	Precompute *circuits.ShaPrecomputeHint
}

// ProveResult is a locally verified proof with its public inputs.
type ProveResult struct {
	Proof        types.Proof
	PublicInputs pubsignals.PublicInputs
	Values       pubsignals.Values
	Inputs       types.CircuitInputs
}

// Prover turns an identity token and ephemeral key material into a proof.
type Prover struct {
	config
	resolver KeyResolver
	builder  *circuits.Builder
	pipeline *proofs.Pipeline
}

// NewProver creates a Prover.
func NewProver(resolver KeyResolver, builder *circuits.Builder, pipeline *proofs.Pipeline, opts ...Option) *Prover {
	return &Prover{
		config:   newConfig(opts),
		resolver: resolver,
		builder:  builder,
		pipeline: pipeline,
	}
}

// Prove builds the circuit inputs, proves them and checks the proof locally.
// The public inputs are encoded from the logical values and must equal the
// ones derived from the circuit inputs.
func (p *Prover) Prove(ctx context.Context, req ProveRequest) (*ProveResult, error) {
	tok, err := token.Parse(req.Token)
	if err != nil {
		return nil, err
	}
	key, err := p.resolver.Resolve(ctx, tok.Issuer, tok.KeyID)
	if err != nil {
		return nil, err
	}

	maxLen := req.MaxSignedDataLength
	if maxLen == 0 {
		maxLen = constants.DefaultMaxSignedDataLength
	}
	inputs, err := p.builder.Build(tok, key, req.Ephemeral, req.Domain, maxLen, req.Precompute)
	if err != nil {
		return nil, err
	}

	values := pubsignals.Values{
		Modulus:         key.Modulus,
		Domain:          req.Domain,
		EphemeralPubkey: req.Ephemeral.PublicKey,
		Expiry:          req.Ephemeral.Expiry,
	}
	public, err := p.schema.Encode(values.Modulus, values.Domain, values.EphemeralPubkey, values.Expiry)
	if err != nil {
		return nil, err
	}
	derived, err := p.schema.FromCircuitInputs(inputs)
	if err != nil {
		return nil, err
	}
	if err := pubsignals.Compare(public, derived); err != nil {
		return nil, err
	}

	proof, err := p.pipeline.Prove(ctx, req.SRSPath, inputs)
	if err != nil {
		return nil, err
	}
	ok, err := p.pipeline.VerifyLocal(ctx, req.SRSPath, proof)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.NewError(types.KindLocalVerification, "verify locally", ErrLocalVerification)
	}

	embedded, err := p.pipeline.PublicInputs(proof)
	switch {
	case errors.Is(err, proofs.ErrNoExtractor):
	case err != nil:
		return nil, err
	default:
		if err := pubsignals.Compare(public, embedded); err != nil {
			return nil, err
		}
	}

	p.logger.Info("membership proof ready",
		zap.String("issuer", tok.Issuer),
		zap.String("kid", tok.KeyID),
		zap.String("domain", req.Domain),
		zap.Int("proof_bytes", len(proof)))
	return &ProveResult{Proof: proof, PublicInputs: public, Values: values, Inputs: inputs}, nil
}
