package main

import (
	"github.com/spf13/cobra"
	"github.com/zkjwt/go-zkjwt-auth/config"
)

type globalFlags struct {
	envFiles []string
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "zkjwt",
		Short:         "zk-JWT membership proofs",
		Long:          `Prove that an OAuth identity token binds an ephemeral key to a domain, verify such proofs on chain and serve the member message board.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringSliceVar(&g.envFiles, "env-file", nil, "Env files to load before the process environment (default .env if present)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCmd(g),
		newProveCmd(g),
		newVerifyCmd(g),
		newKeygenCmd(),
		newSignCmd(),
		newSRSCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func (g *globalFlags) load() (config.Config, error) {
	cfg, err := config.Load(g.envFiles...)
	if err != nil {
		return cfg, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, nil
}
