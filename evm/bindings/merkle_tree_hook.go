package bindings

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const merkleTreeHookABIJSON = `[
	{"type":"function","name":"count","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint32"}]},
	{"type":"function","name":"root","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"tree","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"tuple","components":[{"name":"branch","type":"bytes32[32]"},{"name":"count","type":"uint256"}]}]},
	{"type":"function","name":"latestCheckpoint","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"},{"name":"","type":"uint32"}]},
	{"type":"event","name":"InsertedIntoTree","inputs":[{"name":"messageId","type":"bytes32","indexed":false},{"name":"index","type":"uint32","indexed":false}],"anonymous":false}
]`

var merkleTreeHookABI = mustParseABI(merkleTreeHookABIJSON)

// Tree mirrors the onchain incremental merkle storage layout.
type Tree struct {
	Branch [32][32]byte
	Count  *big.Int
}

// MerkleTreeHook wraps the commitment-tree contract.
type MerkleTreeHook struct {
	address common.Address
	caller  ContractCaller
}

func NewMerkleTreeHook(address common.Address, caller ContractCaller) *MerkleTreeHook {
	return &MerkleTreeHook{address: address, caller: caller}
}

func (h *MerkleTreeHook) Address() common.Address {
	return h.address
}

func (h *MerkleTreeHook) Count(ctx context.Context, blockNumber *big.Int) (uint32, error) {
	out, err := call(ctx, h.caller, merkleTreeHookABI, h.address, blockNumber, "count")
	if err != nil {
		return 0, err
	}
	count, ok := out[0].(uint32)
	if !ok {
		return 0, fmt.Errorf("unexpected count result type %T", out[0])
	}
	return count, nil
}

func (h *MerkleTreeHook) Root(ctx context.Context, blockNumber *big.Int) ([32]byte, error) {
	out, err := call(ctx, h.caller, merkleTreeHookABI, h.address, blockNumber, "root")
	if err != nil {
		return [32]byte{}, err
	}
	root, ok := out[0].([32]byte)
	if !ok {
		return [32]byte{}, fmt.Errorf("unexpected root result type %T", out[0])
	}
	return root, nil
}

func (h *MerkleTreeHook) Tree(ctx context.Context, blockNumber *big.Int) (Tree, error) {
	out, err := call(ctx, h.caller, merkleTreeHookABI, h.address, blockNumber, "tree")
	if err != nil {
		return Tree{}, err
	}
	tree, ok := abi.ConvertType(out[0], new(Tree)).(*Tree)
	if !ok {
		return Tree{}, fmt.Errorf("unexpected tree result type %T", out[0])
	}
	return *tree, nil
}

// LatestCheckpoint reads the current (root, index) commitment.
func (h *MerkleTreeHook) LatestCheckpoint(ctx context.Context, blockNumber *big.Int) ([32]byte, uint32, error) {
	out, err := call(ctx, h.caller, merkleTreeHookABI, h.address, blockNumber, "latestCheckpoint")
	if err != nil {
		return [32]byte{}, 0, err
	}
	root, ok := out[0].([32]byte)
	if !ok {
		return [32]byte{}, 0, fmt.Errorf("unexpected checkpoint root type %T", out[0])
	}
	index, ok := out[1].(uint32)
	if !ok {
		return [32]byte{}, 0, fmt.Errorf("unexpected checkpoint index type %T", out[1])
	}
	return root, index, nil
}

// InsertedIntoTreeTopic returns the InsertedIntoTree event signature topic.
func (h *MerkleTreeHook) InsertedIntoTreeTopic() common.Hash {
	return merkleTreeHookABI.Events["InsertedIntoTree"].ID
}

// UnpackInsertedIntoTree decodes an InsertedIntoTree log.
func (h *MerkleTreeHook) UnpackInsertedIntoTree(log types.Log) ([32]byte, uint32, error) {
	out, err := merkleTreeHookABI.Unpack("InsertedIntoTree", log.Data)
	if err != nil {
		return [32]byte{}, 0, fmt.Errorf("failed to unpack InsertedIntoTree log: %w", err)
	}
	messageID, ok := out[0].([32]byte)
	if !ok {
		return [32]byte{}, 0, fmt.Errorf("unexpected messageId type %T", out[0])
	}
	index, ok := out[1].(uint32)
	if !ok {
		return [32]byte{}, 0, fmt.Errorf("unexpected index type %T", out[1])
	}
	return messageID, index, nil
}
