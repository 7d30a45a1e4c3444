package mining

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/b0ase/clawminer/internal/block"
)

func TestMempoolSubmitDedupesByID(t *testing.T) {
	m := NewMempool(10)
	item := block.NewWorkItem(block.TxIndexed, []byte("a"), 1)
	m.Submit(item)
	m.Submit(item)
	require.Equal(t, 1, m.Size())
}

func TestMempoolEvictsOldestAtCapacity(t *testing.T) {
	m := NewMempool(2)
	a := block.NewWorkItem(block.TxIndexed, []byte("a"), 1)
	b := block.NewWorkItem(block.TxIndexed, []byte("b"), 2)
	c := block.NewWorkItem(block.TxIndexed, []byte("c"), 3)
	m.Submit(a)
	m.Submit(b)
	m.Submit(c)

	require.Equal(t, 2, m.Size())
	drained := m.Drain(10)
	ids := map[[32]byte]bool{}
	for _, it := range drained {
		ids[it.ID] = true
	}
	require.False(t, ids[a.ID], "oldest item should have been evicted")
	require.True(t, ids[b.ID])
	require.True(t, ids[c.ID])
}

func TestMempoolDrainReturnsSortedAndEmpties(t *testing.T) {
	m := NewMempool(10)
	b := block.NewWorkItem(block.TxIndexed, []byte("b"), 2)
	a := block.NewWorkItem(block.TxIndexed, []byte("a"), 1)
	m.Submit(b)
	m.Submit(a)

	drained := m.Drain(10)
	require.Len(t, drained, 2)
	require.True(t, bytes.Compare(drained[0].ID[:], drained[1].ID[:]) <= 0)
	require.Equal(t, 0, m.Size())
}

func TestMempoolDrainPartial(t *testing.T) {
	m := NewMempool(10)
	for i := 0; i < 5; i++ {
		m.Submit(block.NewWorkItem(block.TxIndexed, []byte{byte(i)}, int64(i)))
	}
	drained := m.Drain(3)
	require.Len(t, drained, 3)
	require.Equal(t, 2, m.Size())
}
