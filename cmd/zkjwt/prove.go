package main

import (
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	auth "github.com/zkjwt/go-zkjwt-auth"
	"github.com/zkjwt/go-zkjwt-auth/circuits"
	"github.com/zkjwt/go-zkjwt-auth/nonce"
	"github.com/zkjwt/go-zkjwt-auth/pubsignals"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

// proofFile is the output of prove and the input of verify. It has the
// same shape as the body of POST /v1/proofs/verify.
type proofFile struct {
	Proof        hexutil.Bytes `json:"proof"`
	PublicInputs []string      `json:"public_inputs"`
}

type proveFlags struct {
	token          string
	tokenFile      string
	pubkey         string
	salt           string
	expiry         string
	domain         string
	precomputeKeys []string
	nonceScheme    string
	out            string
}

func newProveCmd(g *globalFlags) *cobra.Command {
	f := &proveFlags{}
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Prove membership of a domain",
		Long:  `Build the circuit inputs for an identity token and an ephemeral key, prove them and check the proof locally.`,
		Example: `  zkjwt prove --token-file id_token.jwt \
    --pubkey 0x1c3d... --salt 0x93a1... --expiry 2025-05-07T09:07:57.379Z \
    --domain example.com --precompute-keys email --out proof.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			req, err := f.request()
			if err != nil {
				return err
			}
			req.SRSPath = cfg.SRSPath
			req.MaxSignedDataLength = cfg.MaxSignedDataLength

			scheme, err := nonce.SchemeByName(f.nonceScheme)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			builder := circuits.NewBuilder(nonce.NewBinder(nonce.WithScheme(scheme)), circuits.WithLogger(a.logger.Named("circuits")))
			prover := auth.NewProver(a.keyResolver(), builder, a.pipeline,
				auth.WithLogger(a.logger.Named("prover")),
				auth.WithMetrics(a.metrics))

			res, err := prover.Prove(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeProof(cmd.OutOrStdout(), f.out, res.Proof, res.PublicInputs)
		},
	}
	cmd.Flags().StringVar(&f.token, "token", "", "Identity token (compact JWS)")
	cmd.Flags().StringVar(&f.tokenFile, "token-file", "", "File holding the identity token")
	cmd.Flags().StringVar(&f.pubkey, "pubkey", "", "Ephemeral public key (decimal or 0x hex)")
	cmd.Flags().StringVar(&f.salt, "salt", "", "Ephemeral salt (decimal or 0x hex)")
	cmd.Flags().StringVar(&f.expiry, "expiry", "", "Ephemeral key expiry (RFC 3339)")
	cmd.Flags().StringVar(&f.domain, "domain", "", "Domain to prove membership of")
	cmd.Flags().StringSliceVar(&f.precomputeKeys, "precompute-keys", nil, "Claims before which the signed data is hashed outside the circuit")
	cmd.Flags().StringVar(&f.nonceScheme, "nonce-scheme", nonce.MiMC.Name(), "Nonce hash the token was issued with")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Output file (default stdout)")
	for _, name := range []string{"pubkey", "salt", "expiry", "domain"} {
		_ = cmd.MarkFlagRequired(name)
	}
	cmd.MarkFlagsMutuallyExclusive("token", "token-file")
	return cmd
}

func (f *proveFlags) request() (auth.ProveRequest, error) {
	tok := f.token
	if f.tokenFile != "" {
		raw, err := os.ReadFile(f.tokenFile)
		if err != nil {
			return auth.ProveRequest{}, errors.Wrap(err, "read token")
		}
		tok = string(raw)
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return auth.ProveRequest{}, errors.New("one of --token and --token-file is required")
	}

	eph, err := types.ParseEphemeralKey(f.pubkey, f.salt, f.expiry)
	if err != nil {
		return auth.ProveRequest{}, err
	}
	req := auth.ProveRequest{Token: tok, Ephemeral: eph, Domain: f.domain}
	if len(f.precomputeKeys) > 0 {
		req.Precompute = &circuits.ShaPrecomputeHint{Keys: f.precomputeKeys}
	}
	return req, nil
}

func writeProof(stdout io.Writer, path string, proof types.Proof, inputs pubsignals.PublicInputs) error {
	out := stdout
	if path != "" {
		fh, err := os.Create(path)
		if err != nil {
			return errors.WithStack(err)
		}
		defer fh.Close()
		out = fh
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return errors.WithStack(enc.Encode(proofFile{Proof: hexutil.Bytes(proof), PublicInputs: inputs.Strings()}))
}

func readProof(path string) (proofFile, error) {
	var pf proofFile
	raw, err := os.ReadFile(path)
	if err != nil {
		return pf, errors.WithStack(err)
	}
	if err := json.Unmarshal(raw, &pf); err != nil {
		return pf, errors.Wrapf(err, "parse %s", path)
	}
	return pf, nil
}
