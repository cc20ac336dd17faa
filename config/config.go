// Package config loads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/constants"
)

// Environment keys.
const (
	EnvListenAddr          = "ZKJWT_LISTEN_ADDR"
	EnvSRSPath             = "ZKJWT_SRS_PATH"
	EnvRPCURL              = "ZKJWT_RPC_URL"
	EnvVerifierAddress     = "ZKJWT_VERIFIER_ADDRESS"
	EnvManagerAddress      = "ZKJWT_MANAGER_ADDRESS"
	EnvPrivateKey          = "ZKJWT_PRIVATE_KEY"
	EnvChainID             = "ZKJWT_CHAIN_ID"
	EnvStoreDriver         = "ZKJWT_STORE_DRIVER"
	EnvStorePath           = "ZKJWT_STORE_PATH"
	EnvMaxSignedDataLength = "ZKJWT_MAX_SIGNED_DATA_LENGTH"
	EnvOnChainTimeout      = "ZKJWT_ONCHAIN_TIMEOUT"
	EnvKeyCacheSize        = "ZKJWT_KEY_CACHE_SIZE"
	EnvJWKSDir             = "ZKJWT_JWKS_DIR"
	EnvLogLevel            = "ZKJWT_LOG_LEVEL"
	EnvLogFormat           = "ZKJWT_LOG_FORMAT"
	EnvLogFile             = "ZKJWT_LOG_FILE"
)

// Store drivers.
const (
	StoreFile   = "file"
	StoreBadger = "badger"
)

const (
	defaultListenAddr = ":8080"
	defaultSRSPath    = "./jwt-srs.local"
	defaultStorePath  = "./data"
	defaultLogLevel   = "info"
	defaultLogFormat  = "json"
)

// Config holds the service settings.
type Config struct {
	ListenAddr string
	SRSPath    string

	RPCURL          string
	VerifierAddress string
	ManagerAddress  string
	// PrivateKey is the hex key that signs record transactions.
	PrivateKey string
	ChainID    int64

	StoreDriver string
	StorePath   string

	MaxSignedDataLength int
	OnChainTimeout      time.Duration
	KeyCacheSize        int64
	// JWKSDir, when set, serves issuer key sets from disk instead of the network.
	JWKSDir string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ListenAddr:          defaultListenAddr,
		SRSPath:             defaultSRSPath,
		StoreDriver:         StoreFile,
		StorePath:           defaultStorePath,
		MaxSignedDataLength: constants.DefaultMaxSignedDataLength,
		OnChainTimeout:      constants.DefaultOnChainTimeout,
		KeyCacheSize:        constants.DefaultCacheMaxSize,
		LogLevel:            defaultLogLevel,
		LogFormat:           defaultLogFormat,
	}
}

// Load reads the environment. envFiles are loaded first without overriding
// variables that are already set; with no files, ".env" is loaded if present.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, errors.Wrap(err, "load env files")
		}
	}

	cfg := Default()
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvListenAddr, &cfg.ListenAddr)
	str(EnvSRSPath, &cfg.SRSPath)
	str(EnvRPCURL, &cfg.RPCURL)
	str(EnvVerifierAddress, &cfg.VerifierAddress)
	str(EnvManagerAddress, &cfg.ManagerAddress)
	str(EnvPrivateKey, &cfg.PrivateKey)
	str(EnvStoreDriver, &cfg.StoreDriver)
	str(EnvStorePath, &cfg.StorePath)
	str(EnvJWKSDir, &cfg.JWKSDir)
	str(EnvLogLevel, &cfg.LogLevel)
	str(EnvLogFormat, &cfg.LogFormat)
	str(EnvLogFile, &cfg.LogFile)

	var err error
	if v := os.Getenv(EnvChainID); v != "" {
		if cfg.ChainID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Config{}, errors.Wrapf(err, "%s", EnvChainID)
		}
	}
	if v := os.Getenv(EnvMaxSignedDataLength); v != "" {
		if cfg.MaxSignedDataLength, err = strconv.Atoi(v); err != nil {
			return Config{}, errors.Wrapf(err, "%s", EnvMaxSignedDataLength)
		}
	}
	if v := os.Getenv(EnvOnChainTimeout); v != "" {
		if cfg.OnChainTimeout, err = time.ParseDuration(v); err != nil {
			return Config{}, errors.Wrapf(err, "%s", EnvOnChainTimeout)
		}
	}
	if v := os.Getenv(EnvKeyCacheSize); v != "" {
		if cfg.KeyCacheSize, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Config{}, errors.Wrapf(err, "%s", EnvKeyCacheSize)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and the consistency of the chain settings.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreFile, StoreBadger:
	default:
		return errors.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.MaxSignedDataLength <= 0 {
		return errors.Errorf("max signed data length must be positive, got %d", c.MaxSignedDataLength)
	}
	if c.OnChainTimeout <= 0 {
		return errors.Errorf("on-chain timeout must be positive, got %s", c.OnChainTimeout)
	}
	if c.KeyCacheSize <= 0 {
		return errors.Errorf("key cache size must be positive, got %d", c.KeyCacheSize)
	}
	for key, addr := range map[string]string{EnvVerifierAddress: c.VerifierAddress, EnvManagerAddress: c.ManagerAddress} {
		if addr != "" && !common.IsHexAddress(addr) {
			return errors.Errorf("%s: invalid address %q", key, addr)
		}
	}
	if c.VerifierAddress != "" && c.ManagerAddress != "" {
		return errors.Errorf("set only one of %s and %s", EnvVerifierAddress, EnvManagerAddress)
	}
	if c.PrivateKey != "" && c.ChainID <= 0 {
		return errors.Errorf("%s is required with %s", EnvChainID, EnvPrivateKey)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return errors.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// OnChain reports whether on-chain verification is configured.
func (c Config) OnChain() bool {
	return c.RPCURL != "" && (c.VerifierAddress != "" || c.ManagerAddress != "")
}

// Recording reports whether verified proofs are also recorded on chain.
func (c Config) Recording() bool {
	return c.OnChain() && c.ManagerAddress != "" && c.PrivateKey != ""
}
