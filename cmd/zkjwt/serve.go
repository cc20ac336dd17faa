package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zkjwt/go-zkjwt-auth/server"
	"go.uber.org/zap"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		addr        string
		corsOrigins []string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the verification API server",
		Long:  `Serve proof verification, member registration and the message board over HTTP.`,
		Example: `  # Verify against a proof manager on a local chain
  ZKJWT_RPC_URL=http://127.0.0.1:8545 \
  ZKJWT_MANAGER_ADDRESS=0xE4F771f86B34BF7B323d9130c385117Ec39377c3 \
    zkjwt serve --addr :9090

  # Allow a browser client
  zkjwt serve --cors-origins https://board.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			verifier, err := a.verifier(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("starting server",
				zap.String("store", cfg.StoreDriver),
				zap.String("srs", cfg.SRSPath),
				zap.Bool("recording", cfg.Recording()))

			srv := server.New(verifier, a.store, cfg.SRSPath,
				server.WithLogger(a.logger.Named("http")),
				server.WithGatherer(a.registry),
				server.WithCORS(corsOrigins...))
			return srv.Run(ctx, cfg.ListenAddr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (overrides ZKJWT_LISTEN_ADDR)")
	cmd.Flags().StringSliceVar(&corsOrigins, "cors-origins", nil, "Allowed CORS origins (empty disables CORS)")
	return cmd
}
