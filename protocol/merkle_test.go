package protocol

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// refZeros[d] is the root of a depth-d all-zero subtree.
var refZeros = func() [TreeDepth + 1]Bytes32 {
	var z [TreeDepth + 1]Bytes32
	for d := 1; d <= TreeDepth; d++ {
		z[d] = Keccak256(z[d-1][:], z[d-1][:])
	}
	return z
}()

// refNode recomputes the node at (depth, index) of a sparse padded merkle
// tree from first principles, pruning empty subtrees.
func refNode(leaves []Bytes32, depth int, index uint64) Bytes32 {
	if index<<depth >= uint64(len(leaves)) {
		return refZeros[depth]
	}
	if depth == 0 {
		return leaves[index]
	}
	left := refNode(leaves, depth-1, index*2)
	right := refNode(leaves, depth-1, index*2+1)
	return Keccak256(left[:], right[:])
}

func testLeaf(i int) Bytes32 {
	return Keccak256([]byte(fmt.Sprintf("leaf-%d", i)))
}

func TestIncrementalMerkleRootMatchesReference(t *testing.T) {
	tree := &IncrementalMerkle{}
	var leaves []Bytes32

	require.Equal(t, refNode(nil, TreeDepth, 0), tree.Root())

	for i := 0; i < 9; i++ {
		leaf := testLeaf(i)
		leaves = append(leaves, leaf)
		require.NoError(t, tree.Ingest(leaf))

		require.Equal(t, uint64(i+1), tree.Count())
		require.Equal(t, refNode(leaves, TreeDepth, 0), tree.Root(), "root mismatch after %d leaves", i+1)
	}
}

func TestIncrementalMerkleReconstruction(t *testing.T) {
	original := &IncrementalMerkle{}
	for i := 0; i < 5; i++ {
		require.NoError(t, original.Ingest(testLeaf(i)))
	}

	rebuilt := NewIncrementalMerkle(original.Branch(), original.Count())
	require.Equal(t, original.Root(), rebuilt.Root())

	// The rebuilt tree keeps accumulating exactly like the original.
	next := testLeaf(5)
	require.NoError(t, original.Ingest(next))
	require.NoError(t, rebuilt.Ingest(next))
	require.Equal(t, original.Root(), rebuilt.Root())
}

func TestIncrementalMerkleFull(t *testing.T) {
	tree := NewIncrementalMerkle([TreeDepth]Bytes32{}, MaxLeaves)
	require.ErrorIs(t, tree.Ingest(testLeaf(0)), errTreeFull)
}

func TestKeccak256KnownVector(t *testing.T) {
	empty, err := NewBytes32FromString("0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")
	require.NoError(t, err)
	require.Equal(t, empty, Bytes32(Keccak256(nil)))

	// Variadic segments hash as one concatenated input.
	require.Equal(t, Keccak256([]byte("ab")), Keccak256([]byte("a"), []byte("b")))
}
