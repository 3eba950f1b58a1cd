package evm

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
)

// TransactionOverrides controls how gas parameters are resolved before
// submission. Fixed values win over multipliers; multipliers apply to the
// node's estimate/suggestion; with neither, the estimate is used as-is.
type TransactionOverrides struct {
	// GasPrice pins the legacy gas price. Disables the EIP-1559 path.
	GasPrice *big.Int
	// GasPriceMultiplier scales the suggested gas price (and fee caps on the
	// EIP-1559 path) when no fixed value is set. Zero means no scaling.
	GasPriceMultiplier float64
	// GasLimit pins the gas limit for every transaction.
	GasLimit *big.Int
	// GasLimitMultiplier scales the estimated gas limit. Zero means no scaling.
	GasLimitMultiplier float64
	// MaxFeePerGas / MaxPriorityFeePerGas pin the EIP-1559 fee caps.
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// FinalityConfig bounds the post-submission finality wait.
type FinalityConfig struct {
	// MaxAttempts caps the finality polls before giving up with
	// ErrFinalityTimeout.
	MaxAttempts int
	// InitialBackoff and MaxBackoff shape the exponential backoff between
	// polls.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultFinalityConfig sits above one mainnet epoch: 12 attempts backing
// off from 2s to a 30s ceiling.
func DefaultFinalityConfig() FinalityConfig {
	return FinalityConfig{
		MaxAttempts:    12,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// BatchConfig bounds batch delivery.
type BatchConfig struct {
	// MaxBatchSize caps how many operations one aggregate may carry.
	MaxBatchSize int
}

// ConnectionConf is the full connection configuration for one chain,
// supplied opaquely by the surrounding harness.
type ConnectionConf struct {
	// RPCURL is the JSON-RPC endpoint of the chain.
	RPCURL string
	// Domain is the protocol-level identifier of the chain.
	Domain uint32
	// MailboxAddress and MerkleTreeHookAddress locate the protocol contracts.
	MailboxAddress        common.Address
	MerkleTreeHookAddress common.Address
	// MulticallAddress overrides the canonical Multicall3 deployment.
	// Zero value selects the default.
	MulticallAddress common.Address
	// IsRollup marks chains whose primary gas estimate mixes base-layer and
	// execution-layer costs and which expose the NodeInterface auxiliary
	// contract for isolating the latter.
	IsRollup bool

	TransactionOverrides TransactionOverrides
	Finality             FinalityConfig
	Batch                BatchConfig
}

// connectionConfTOML is the on-disk shape of ConnectionConf.
type connectionConfTOML struct {
	RPCURL                string `toml:"RPCURL"`
	Domain                uint32 `toml:"Domain"`
	MailboxAddress        string `toml:"MailboxAddress"`
	MerkleTreeHookAddress string `toml:"MerkleTreeHookAddress"`
	MulticallAddress      string `toml:"MulticallAddress"`
	IsRollup              bool   `toml:"IsRollup"`

	Overrides struct {
		GasPrice             uint64  `toml:"GasPrice"`
		GasPriceMultiplier   float64 `toml:"GasPriceMultiplier"`
		GasLimit             uint64  `toml:"GasLimit"`
		GasLimitMultiplier   float64 `toml:"GasLimitMultiplier"`
		MaxFeePerGas         uint64  `toml:"MaxFeePerGas"`
		MaxPriorityFeePerGas uint64  `toml:"MaxPriorityFeePerGas"`
	} `toml:"Overrides"`

	Finality struct {
		MaxAttempts    int    `toml:"MaxAttempts"`
		InitialBackoff string `toml:"InitialBackoff"`
		MaxBackoff     string `toml:"MaxBackoff"`
	} `toml:"Finality"`

	Batch struct {
		MaxBatchSize int `toml:"MaxBatchSize"`
	} `toml:"Batch"`
}

// LoadConnectionConf reads a ConnectionConf from a TOML file.
func LoadConnectionConf(path string) (ConnectionConf, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ConnectionConf{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file connectionConfTOML
	if err := toml.Unmarshal(raw, &file); err != nil {
		return ConnectionConf{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	conf := ConnectionConf{
		RPCURL:                file.RPCURL,
		Domain:                file.Domain,
		MailboxAddress:        common.HexToAddress(file.MailboxAddress),
		MerkleTreeHookAddress: common.HexToAddress(file.MerkleTreeHookAddress),
		IsRollup:              file.IsRollup,
		Finality:              DefaultFinalityConfig(),
		Batch:                 BatchConfig{MaxBatchSize: file.Batch.MaxBatchSize},
	}
	if file.MulticallAddress != "" {
		conf.MulticallAddress = common.HexToAddress(file.MulticallAddress)
	}

	o := &conf.TransactionOverrides
	if file.Overrides.GasPrice != 0 {
		o.GasPrice = new(big.Int).SetUint64(file.Overrides.GasPrice)
	}
	o.GasPriceMultiplier = file.Overrides.GasPriceMultiplier
	if file.Overrides.GasLimit != 0 {
		o.GasLimit = new(big.Int).SetUint64(file.Overrides.GasLimit)
	}
	o.GasLimitMultiplier = file.Overrides.GasLimitMultiplier
	if file.Overrides.MaxFeePerGas != 0 {
		o.MaxFeePerGas = new(big.Int).SetUint64(file.Overrides.MaxFeePerGas)
	}
	if file.Overrides.MaxPriorityFeePerGas != 0 {
		o.MaxPriorityFeePerGas = new(big.Int).SetUint64(file.Overrides.MaxPriorityFeePerGas)
	}

	if file.Finality.MaxAttempts != 0 {
		conf.Finality.MaxAttempts = file.Finality.MaxAttempts
	}
	if file.Finality.InitialBackoff != "" {
		d, err := time.ParseDuration(file.Finality.InitialBackoff)
		if err != nil {
			return ConnectionConf{}, fmt.Errorf("invalid InitialBackoff: %w", err)
		}
		conf.Finality.InitialBackoff = d
	}
	if file.Finality.MaxBackoff != "" {
		d, err := time.ParseDuration(file.Finality.MaxBackoff)
		if err != nil {
			return ConnectionConf{}, fmt.Errorf("invalid MaxBackoff: %w", err)
		}
		conf.Finality.MaxBackoff = d
	}

	return conf, nil
}

// Multicall returns the configured multicall address, falling back to the
// canonical deployment.
func (c ConnectionConf) Multicall() common.Address {
	if c.MulticallAddress != (common.Address{}) {
		return c.MulticallAddress
	}
	return defaultMulticallAddress
}
