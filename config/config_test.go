package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		EnvListenAddr, EnvSRSPath, EnvRPCURL, EnvVerifierAddress, EnvManagerAddress,
		EnvPrivateKey, EnvChainID, EnvStoreDriver, EnvStorePath, EnvMaxSignedDataLength,
		EnvOnChainTimeout, EnvKeyCacheSize, EnvJWKSDir, EnvLogLevel, EnvLogFormat, EnvLogFile,
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.False(t, cfg.OnChain())
	require.False(t, cfg.Recording())
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "zkjwt.env")
	require.NoError(t, os.WriteFile(path, []byte(`
ZKJWT_RPC_URL=http://127.0.0.1:8545
ZKJWT_MANAGER_ADDRESS=0xE4F771f86B34BF7B323d9130c385117Ec39377c3
ZKJWT_PRIVATE_KEY=ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80
ZKJWT_CHAIN_ID=31337
ZKJWT_STORE_DRIVER=badger
ZKJWT_ONCHAIN_TIMEOUT=5s
ZKJWT_MAX_SIGNED_DATA_LENGTH=2048
`), 0o600))
	// the process environment wins over the file
	t.Setenv(EnvChainID, "1337")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8545", cfg.RPCURL)
	require.Equal(t, int64(1337), cfg.ChainID)
	require.Equal(t, StoreBadger, cfg.StoreDriver)
	require.Equal(t, 5*time.Second, cfg.OnChainTimeout)
	require.Equal(t, 2048, cfg.MaxSignedDataLength)
	require.True(t, cfg.OnChain())
	require.True(t, cfg.Recording())
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"driver":        {EnvStoreDriver: "postgres"},
		"timeout":       {EnvOnChainTimeout: "soon"},
		"chain id":      {EnvChainID: "mainnet"},
		"address":       {EnvVerifierAddress: "0x1234"},
		"both":          {EnvVerifierAddress: "0xE4F771f86B34BF7B323d9130c385117Ec39377c3", EnvManagerAddress: "0xE4F771f86B34BF7B323d9130c385117Ec39377c3"},
		"key, no chain": {EnvPrivateKey: "ac09"},
		"length":        {EnvMaxSignedDataLength: "-1"},
		"log format":    {EnvLogFormat: "xml"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Chdir(t.TempDir())
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
