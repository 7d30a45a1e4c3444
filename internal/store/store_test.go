package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/b0ase/clawminer/internal/block"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "clawminer.db"), filepath.Join(dir, "content"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertPoIBlockAssignsHeightsAndIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	hdr := block.Header{Version: 1, Timestamp: 1000, Bits: 0x1f00ffff, MinerAddress: "addr1"}
	hash := [32]byte{1, 2, 3}

	h1, err := s.InsertPoIBlock(hdr, hash, nil, true, "")
	require.NoError(t, err)
	require.Equal(t, int64(0), h1)

	h2, err := s.InsertPoIBlock(hdr, hash, nil, true, "")
	require.NoError(t, err)
	require.Equal(t, h1, h2, "re-inserting the same hash must not bump height")

	hash2 := [32]byte{4, 5, 6}
	h3, err := s.InsertPoIBlock(hdr, hash2, nil, false, "peerA")
	require.NoError(t, err)
	require.Equal(t, int64(1), h3)

	n, err := s.GetPoIBlockCount()
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	own, err := s.GetOwnBlockCount()
	require.NoError(t, err)
	require.Equal(t, int64(1), own)
}

func TestHeaderUpsertIsIdempotentAndMerkleLookupWorks(t *testing.T) {
	s := openTestStore(t)

	h := Header{Height: 10, Hash: "deadbeef", MerkleRoot: "cafebabe", Timestamp: 500}
	require.NoError(t, s.UpsertHeader(h))
	require.NoError(t, s.UpsertHeader(h))

	top, err := s.HighestHeaderHeight()
	require.NoError(t, err)
	require.Equal(t, int64(10), top)

	found, err := s.HasMerkleRoot("cafebabe", 10)
	require.NoError(t, err)
	require.True(t, found)

	missing, err := s.HasMerkleRoot("cafebabe", 5)
	require.NoError(t, err)
	require.False(t, missing)
}

func TestPeerReputationClampsToBounds(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertPeerSeen("peer1", "/ip4/1.2.3.4/tcp/4001", "bootstrap"))

	for i := 0; i < 20; i++ {
		require.NoError(t, s.AdjustPeerReputation("peer1", -10, false))
	}
	peers, err := s.GetActivePeers()
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, 0, peers[0].Reputation)
	require.Equal(t, int64(20), peers[0].InvalidCount)
}

func TestPutContentRoundTrips(t *testing.T) {
	s := openTestStore(t)
	hash, err := s.PutContent([]byte("hello clawminer"))
	require.NoError(t, err)

	data, err := s.GetContent(hash)
	require.NoError(t, err)
	require.Equal(t, "hello clawminer", string(data))
}

func TestNodeIDIsStableAcrossCalls(t *testing.T) {
	s := openTestStore(t)
	id1, err := s.GetOrCreateNodeID()
	require.NoError(t, err)
	id2, err := s.GetOrCreateNodeID()
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}
