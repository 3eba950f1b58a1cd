package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/crosslane/crosslane-evm/protocol"
)

// Client is the slice of the EVM JSON-RPC surface this adapter consumes.
// *ethclient.Client satisfies it; tests substitute fakes. The adapter holds
// it as a shared read-only handle and places no synchronization around it.
type Client interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
}

var _ Client = (*ethclient.Client)(nil)

// Dial connects to an EVM JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %w", protocol.ErrTransport, url, err)
	}
	return client, nil
}

var finalizedTag = big.NewInt(int64(rpc.FinalizedBlockNumber))

// FinalizedBlockNumber resolves the latest block the ledger reports as
// irreversible. Each call is a fresh read; callers needing a stable snapshot
// must reuse one value within a logical operation.
func FinalizedBlockNumber(ctx context.Context, client Client) (uint64, error) {
	header, err := client.HeaderByNumber(ctx, finalizedTag)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return 0, protocol.ErrFinalityUnknown
		}
		return 0, fmt.Errorf("%w: failed to get finalized header: %w", protocol.ErrTransport, err)
	}
	if header == nil || header.Number == nil {
		return 0, protocol.ErrFinalityUnknown
	}
	return header.Number.Uint64(), nil
}
