package protocol

import (
	"errors"
	"fmt"
)

// TreeDepth is the fixed depth of the onchain incremental merkle tree.
const TreeDepth = 32

// MaxLeaves is the maximum number of leaves the tree can hold.
const MaxLeaves = (1 << TreeDepth) - 1

var errTreeFull = errors.New("merkle tree is full")

// zeroHashes[i] is the root of a depth-i subtree with all-zero leaves.
var zeroHashes = func() [TreeDepth]Bytes32 {
	var z [TreeDepth]Bytes32
	for i := 1; i < TreeDepth; i++ {
		z[i] = Keccak256(z[i-1][:], z[i-1][:])
	}
	return z
}()

// IncrementalMerkle is an append-only merkle accumulator mirroring the
// onchain tree: one branch hash per level plus a leaf count. The adapter
// reconstructs it verbatim from chain state; it never validates internal
// hash consistency of a reconstructed tree.
type IncrementalMerkle struct {
	branch [TreeDepth]Bytes32
	count  uint64
}

// NewIncrementalMerkle builds a tree from a branch and leaf count read from
// the chain.
func NewIncrementalMerkle(branch [TreeDepth]Bytes32, count uint64) *IncrementalMerkle {
	return &IncrementalMerkle{branch: branch, count: count}
}

// Count returns the number of leaves ingested.
func (t *IncrementalMerkle) Count() uint64 {
	return t.count
}

// Branch returns the per-level branch hashes.
func (t *IncrementalMerkle) Branch() [TreeDepth]Bytes32 {
	return t.branch
}

// Ingest appends a leaf to the tree.
func (t *IncrementalMerkle) Ingest(element Bytes32) error {
	if t.count >= MaxLeaves {
		return errTreeFull
	}

	t.count++
	node := element
	size := t.count
	for i := 0; i < TreeDepth; i++ {
		if size&1 == 1 {
			t.branch[i] = node
			return nil
		}
		node = Keccak256(t.branch[i][:], node[:])
		size /= 2
	}

	// count < MaxLeaves guarantees a set bit within TreeDepth levels
	panic(fmt.Sprintf("unreachable: merkle ingest overran depth at count %d", t.count))
}

// Root returns the current root of the tree.
func (t *IncrementalMerkle) Root() Bytes32 {
	var current Bytes32
	index := t.count

	for i := 0; i < TreeDepth; i++ {
		if (index>>i)&1 == 1 {
			current = Keccak256(t.branch[i][:], current[:])
		} else {
			current = Keccak256(current[:], zeroHashes[i][:])
		}
	}

	return current
}
