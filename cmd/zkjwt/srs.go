package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/zkjwt/go-zkjwt-auth/proofs/plonk"
)

func newSRSCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "srs",
		Short: "Write an unsafe development SRS",
		Long: `Write a KZG SRS for the reference PLONK backend from known toxic waste.
Proofs made with it are not sound. Use it for tests and local development only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			if err := plonk.GenerateDevSRS(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s%s\n", out, out, plonk.LagrangeSuffix)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "./jwt-srs.local", "SRS output path")
	return cmd
}
