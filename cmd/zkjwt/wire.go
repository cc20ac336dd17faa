package main

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	auth "github.com/zkjwt/go-zkjwt-auth"
	"github.com/zkjwt/go-zkjwt-auth/cache"
	"github.com/zkjwt/go-zkjwt-auth/config"
	"github.com/zkjwt/go-zkjwt-auth/jwks"
	"github.com/zkjwt/go-zkjwt-auth/loaders"
	"github.com/zkjwt/go-zkjwt-auth/metrics"
	"github.com/zkjwt/go-zkjwt-auth/proofs"
	"github.com/zkjwt/go-zkjwt-auth/proofs/plonk"
	"github.com/zkjwt/go-zkjwt-auth/storage"
	"github.com/zkjwt/go-zkjwt-auth/storage/badger"
	"github.com/zkjwt/go-zkjwt-auth/storage/file"
	"github.com/zkjwt/go-zkjwt-auth/verification"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// app holds the components shared by the commands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	pipeline *proofs.Pipeline

	client *ethclient.Client
	store  storage.Store
}

func newApp(cfg config.Config) (*app, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	backend := plonk.NewBackend(plonk.WithLogger(logger.Named("plonk")))
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  m,
		pipeline: proofs.NewPipeline(backend, proofs.WithLogger(logger.Named("proofs")), proofs.WithMetrics(m)),
	}, nil
}

// Close releases the store and the RPC connection.
func (a *app) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
	_ = a.logger.Sync()
	return err
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.LogFormat == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if cfg.LogFile != "" {
			encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	out := zapcore.Lock(os.Stderr)
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
			return nil, errors.Wrap(err, "log directory")
		}
		out = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	return zap.New(zapcore.NewCore(enc, out, zap.NewAtomicLevelAt(level)), zap.AddCaller()), nil
}

// keyResolver serves issuer keys from JWKSDir when set, otherwise from the
// network. Both fall back to the embedded key sets.
func (a *app) keyResolver() *jwks.Resolver {
	var primary loaders.KeySetLoader = loaders.NewHTTPKeySetLoader()
	if a.cfg.JWKSDir != "" {
		primary = loaders.FSKeySetLoader{Dir: a.cfg.JWKSDir}
	}
	loader := loaders.NewEmbeddedKeySetLoader(loaders.WithKeySetLoader(primary), loaders.WithoutCache())
	return jwks.NewResolver(loader,
		jwks.WithCache(cache.NewInMemoryCache[jwks.SigningKey](a.cfg.KeyCacheSize, cache.NoExpiration)),
		jwks.WithLogger(a.logger.Named("jwks")),
		jwks.WithMetrics(a.metrics))
}

func (a *app) openStore() (storage.Store, error) {
	var err error
	switch a.cfg.StoreDriver {
	case config.StoreBadger:
		a.store, err = badger.Open(a.cfg.StorePath, badger.WithLogger(a.logger.Named("badger")))
	default:
		a.store, err = file.New(a.cfg.StorePath, file.WithLogger(a.logger.Named("store")))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store at %s", a.cfg.StoreDriver, a.cfg.StorePath)
	}
	return a.store, nil
}

// verifier wires the orchestrator to the configured chain and store.
func (a *app) verifier(ctx context.Context) (*auth.Verifier, error) {
	if !a.cfg.OnChain() {
		return nil, errors.Errorf("on-chain verification is not configured: set %s and %s or %s",
			config.EnvRPCURL, config.EnvVerifierAddress, config.EnvManagerAddress)
	}
	client, err := verification.Dial(ctx, a.cfg.RPCURL)
	if err != nil {
		return nil, err
	}
	a.client = client

	var onChain auth.OnChainVerifier
	if a.cfg.ManagerAddress != "" {
		onChain = verification.NewProofManagerVerifier(common.HexToAddress(a.cfg.ManagerAddress), client)
	} else {
		onChain = verification.NewContractVerifier(common.HexToAddress(a.cfg.VerifierAddress), client)
	}

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}

	opts := []auth.Option{
		auth.WithOnChainTimeout(a.cfg.OnChainTimeout),
		auth.WithLogger(a.logger.Named("verifier")),
		auth.WithMetrics(a.metrics),
	}
	if a.cfg.Recording() {
		signer, err := transactor(a.cfg.PrivateKey, a.cfg.ChainID)
		if err != nil {
			return nil, err
		}
		recorder := verification.NewRecorder(common.HexToAddress(a.cfg.ManagerAddress), client, signer,
			verification.WithRecorderLogger(a.logger.Named("recorder")))
		opts = append(opts, auth.WithRecorder(recorder))
		a.logger.Info("recording verified proofs on chain", zap.String("from", signer.From.Hex()))
	}
	return auth.NewVerifier(a.pipeline, onChain, store, opts...), nil
}

func transactor(hexKey string, chainID int64) (*bind.TransactOpts, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "private key")
	}
	return bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
}
