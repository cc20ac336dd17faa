package main

import (
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	auth "github.com/zkjwt/go-zkjwt-auth"
	"github.com/zkjwt/go-zkjwt-auth/pubsignals"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

type verifyOutput struct {
	State          auth.State                `json:"state"`
	Fingerprint    string                    `json:"fingerprint,omitempty"`
	Record         *types.VerificationRecord `json:"record,omitempty"`
	Error          string                    `json:"error,omitempty"`
	RecordingError string                    `json:"recording_error,omitempty"`
}

func newVerifyCmd(g *globalFlags) *cobra.Command {
	var proofPath string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a proof locally and on chain",
		Long:  `Check a proof written by prove against the local verifying key and the configured verifier contract, then record it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			pf, err := readProof(proofPath)
			if err != nil {
				return err
			}
			inputs, err := pubsignals.FromStrings(pf.PublicInputs)
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			verifier, err := a.verifier(cmd.Context())
			if err != nil {
				return err
			}

			res, verr := verifier.Verify(cmd.Context(), auth.VerifyRequest{
				SRSPath:      cfg.SRSPath,
				Proof:        types.Proof(pf.Proof),
				PublicInputs: inputs,
			})
			out := verifyOutput{State: res.State, Record: res.Record}
			if res.Verified() {
				out.Fingerprint = res.Fingerprint.Hex()
			}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}
			if res.RecordingErr != nil {
				out.RecordingError = res.RecordingErr.Error()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return errors.WithStack(err)
			}
			if verr != nil {
				return verr
			}
			return res.RecordingErr
		},
	}
	cmd.Flags().StringVarP(&proofPath, "proof-file", "f", "", "Proof file written by prove")
	_ = cmd.MarkFlagRequired("proof-file")
	return cmd
}
