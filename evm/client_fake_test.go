package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// fakeClient stubs the RPC surface per method. Unstubbed methods fail the
// call so a test only exercises the paths it declares.
type fakeClient struct {
	headerByNumber     func(ctx context.Context, number *big.Int) (*types.Header, error)
	filterLogs         func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	transactionReceipt func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	callContract       func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	estimateGas        func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	suggestGasPrice    func(ctx context.Context) (*big.Int, error)
	suggestGasTipCap   func(ctx context.Context) (*big.Int, error)
	pendingNonceAt     func(ctx context.Context, account common.Address) (uint64, error)
	sendTransaction    func(ctx context.Context, tx *types.Transaction) error
	chainID            func(ctx context.Context) (*big.Int, error)
}

var _ Client = (*fakeClient)(nil)

var errNotStubbed = errors.New("fakeClient: method not stubbed")

func (f *fakeClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if f.headerByNumber == nil {
		return nil, errNotStubbed
	}
	return f.headerByNumber(ctx, number)
}

func (f *fakeClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if f.filterLogs == nil {
		return nil, errNotStubbed
	}
	return f.filterLogs(ctx, q)
}

func (f *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if f.transactionReceipt == nil {
		return nil, errNotStubbed
	}
	return f.transactionReceipt(ctx, txHash)
}

func (f *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.callContract == nil {
		return nil, errNotStubbed
	}
	return f.callContract(ctx, msg, blockNumber)
}

func (f *fakeClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.estimateGas == nil {
		return 0, errNotStubbed
	}
	return f.estimateGas(ctx, msg)
}

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if f.suggestGasPrice == nil {
		return nil, errNotStubbed
	}
	return f.suggestGasPrice(ctx)
}

func (f *fakeClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if f.suggestGasTipCap == nil {
		return nil, errNotStubbed
	}
	return f.suggestGasTipCap(ctx)
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if f.pendingNonceAt == nil {
		return 0, errNotStubbed
	}
	return f.pendingNonceAt(ctx, account)
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendTransaction == nil {
		return errNotStubbed
	}
	return f.sendTransaction(ctx, tx)
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) {
	if f.chainID == nil {
		return nil, errNotStubbed
	}
	return f.chainID(ctx)
}

func testLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// finalizedAt stubs the finalized-tag header read at a fixed tip.
func finalizedAt(tip uint64) func(ctx context.Context, number *big.Int) (*types.Header, error) {
	return func(_ context.Context, number *big.Int) (*types.Header, error) {
		if number == nil || number.Cmp(finalizedTag) != 0 {
			return nil, errors.New("unexpected header request")
		}
		return &types.Header{Number: new(big.Int).SetUint64(tip)}, nil
	}
}

// packValues ABI-encodes values against the given type list.
func packValues(t *testing.T, typeNames []string, values ...any) []byte {
	t.Helper()
	var args abi.Arguments
	for _, name := range typeNames {
		typ, err := abi.NewType(name, "", nil)
		require.NoError(t, err)
		args = append(args, abi.Argument{Type: typ})
	}
	packed, err := args.Pack(values...)
	require.NoError(t, err)
	return packed
}

func selector(signature string) [4]byte {
	return [4]byte(crypto.Keccak256([]byte(signature))[:4])
}

func hasSelector(data []byte, signature string) bool {
	sel := selector(signature)
	return len(data) >= 4 && [4]byte(data[:4]) == sel
}

func testConf() ConnectionConf {
	return ConnectionConf{
		Domain:                1000,
		MailboxAddress:        common.HexToAddress("0x1111111111111111111111111111111111111111"),
		MerkleTreeHookAddress: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Finality: FinalityConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
		Batch: BatchConfig{MaxBatchSize: 8},
	}
}
