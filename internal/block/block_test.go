package block

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWorkItemIDIsDeterministic(t *testing.T) {
	a := NewWorkItem(TxIndexed, []byte("payload"), 1000)
	b := NewWorkItem(TxIndexed, []byte("payload"), 1000)
	require.Equal(t, a.ID, b.ID)

	c := NewWorkItem(ContentServed, []byte("payload"), 1000)
	require.NotEqual(t, a.ID, c.ID, "different item type must change the ID")
}

func TestMerkleRootDuplicatesLastLeafOnOddCount(t *testing.T) {
	a := NewWorkItem(TxIndexed, []byte("a"), 1).ID
	b := NewWorkItem(TxIndexed, []byte("b"), 2).ID
	c := NewWorkItem(TxIndexed, []byte("c"), 3).ID

	sorted := SortItemIDs([][32]byte{a, b, c})

	ab := sha256Pair(sorted[0], sorted[1])
	cc := sha256Pair(sorted[2], sorted[2])
	want := sha256Pair(ab, cc)

	require.Equal(t, want, MerkleRoot(sorted))
}

func sha256Pair(l, r [32]byte) [32]byte {
	var buf [64]byte
	copy(buf[:32], l[:])
	copy(buf[32:], r[:])
	return sha256.Sum256(buf[:])
}

func TestMerkleRootForItemsIsOrderIndependent(t *testing.T) {
	items := []WorkItem{
		NewWorkItem(TxIndexed, []byte("x"), 1),
		NewWorkItem(ContentServed, []byte("y"), 2),
		NewWorkItem(StampValidated, []byte("z"), 3),
	}
	reversed := []WorkItem{items[2], items[1], items[0]}

	require.Equal(t, MerkleRootForItems(items), MerkleRootForItems(reversed))
}

func TestMerkleRootEmpty(t *testing.T) {
	require.Equal(t, [32]byte{}, MerkleRoot(nil))
}

func TestHeaderCanonicalBytesChangesWithNonce(t *testing.T) {
	h := Header{Version: 1, MinerAddress: "addr"}
	h2 := h
	h2.Nonce = 1

	require.NotEqual(t, h.CanonicalBytes(), h2.CanonicalBytes())
}
