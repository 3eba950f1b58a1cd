package evm

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const testConfTOML = `
RPCURL = "http://localhost:8545"
Domain = 1000
MailboxAddress = "0x1111111111111111111111111111111111111111"
MerkleTreeHookAddress = "0x2222222222222222222222222222222222222222"
IsRollup = true

[Overrides]
GasLimitMultiplier = 1.1
MaxFeePerGas = 2000000000

[Finality]
MaxAttempts = 5
InitialBackoff = "500ms"

[Batch]
MaxBatchSize = 16
`

func TestLoadConnectionConf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfTOML), 0o600))

	conf, err := LoadConnectionConf(path)
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8545", conf.RPCURL)
	require.Equal(t, uint32(1000), conf.Domain)
	require.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), conf.MailboxAddress)
	require.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), conf.MerkleTreeHookAddress)
	require.True(t, conf.IsRollup)

	require.Nil(t, conf.TransactionOverrides.GasPrice)
	require.InDelta(t, 1.1, conf.TransactionOverrides.GasLimitMultiplier, 1e-9)
	require.Equal(t, big.NewInt(2_000_000_000), conf.TransactionOverrides.MaxFeePerGas)

	require.Equal(t, 5, conf.Finality.MaxAttempts)
	require.Equal(t, 500*time.Millisecond, conf.Finality.InitialBackoff)
	// Unset fields keep their defaults.
	require.Equal(t, DefaultFinalityConfig().MaxBackoff, conf.Finality.MaxBackoff)

	require.Equal(t, 16, conf.Batch.MaxBatchSize)

	// No multicall override configured, so the canonical deployment applies.
	require.Equal(t, defaultMulticallAddress, conf.Multicall())
}

func TestLoadConnectionConfMissingFile(t *testing.T) {
	_, err := LoadConnectionConf(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestLoadConnectionConfInvalidBackoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.toml")
	require.NoError(t, os.WriteFile(path, []byte("[Finality]\nInitialBackoff = \"soon\"\n"), 0o600))

	_, err := LoadConnectionConf(path)
	require.ErrorContains(t, err, "InitialBackoff")
}
