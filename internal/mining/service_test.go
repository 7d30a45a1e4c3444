package mining

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/b0ase/clawminer/internal/block"
	"github.com/b0ase/clawminer/internal/difficulty"
	"github.com/b0ase/clawminer/internal/pow"
)

func TestServiceMinesBlockWhenMempoolFull(t *testing.T) {
	adj := difficulty.NewAdjuster(1, 144, 10*time.Minute)
	svc := NewService(Config{MinItems: 1, BatchSize: 10, NonceQuantum: 1000}, adj, "addr1")

	var mu sync.Mutex
	var storedHashes [][32]byte
	storedHeight := int64(0)

	svc.SetBlockStorage(func(hdr block.Header, hash [32]byte, items []block.WorkItem, isOwn bool, sourcePeer string) (int64, error) {
		mu.Lock()
		defer mu.Unlock()
		storedHashes = append(storedHashes, hash)
		h := storedHeight
		storedHeight++
		return h, nil
	})

	blockSeen := make(chan struct{}, 1)
	svc.SetBlockObserver(func(hdr block.Header, hash [32]byte, height int64, isOwn bool) {
		select {
		case blockSeen <- struct{}{}:
		default:
		}
	})

	svc.SubmitWork(block.NewWorkItem(block.TxIndexed, []byte("item1"), 1))

	svc.Start(context.Background())
	defer svc.Stop()

	select {
	case <-blockSeen:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a block to be mined")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, storedHashes, 1)
}

func TestAcceptPeerBlockRejectsHashMismatch(t *testing.T) {
	adj := difficulty.NewAdjuster(1, 144, 10*time.Minute)
	svc := NewService(Config{MinItems: 1}, adj, "addr1")

	hdr := block.Header{Version: 1, Bits: adj.Bits(), MinerAddress: "peerAddr"}
	err := svc.AcceptPeerBlock(hdr, [32]byte{0xff}, 1, "peer1", nil)
	require.Error(t, err)
}

func TestAcceptPeerBlockStoresValidBlock(t *testing.T) {
	adj := difficulty.NewAdjuster(1, 144, 10*time.Minute)
	svc := NewService(Config{MinItems: 1}, adj, "addr1")

	var storedIsOwn bool
	var storedSourcePeer string
	svc.SetBlockStorage(func(hdr block.Header, hash [32]byte, items []block.WorkItem, isOwn bool, sourcePeer string) (int64, error) {
		storedIsOwn = isOwn
		storedSourcePeer = sourcePeer
		return 5, nil
	})

	hdr := block.Header{Version: 1, Bits: adj.Bits(), MinerAddress: "peerAddr"}
	// Brute-force a nonce that actually satisfies this easy target so the
	// acceptance path (not just the mismatch path) is exercised.
	var hash [32]byte
	var nonce uint64
	for {
		hdr.Nonce = nonce
		hash = pow.CalculateBlockHash(hdr)
		if pow.CheckDifficulty(hash, hdr.Bits) {
			break
		}
		nonce++
	}

	err := svc.AcceptPeerBlock(hdr, hash, 5, "peer1", nil)
	require.NoError(t, err)
	require.False(t, storedIsOwn)
	require.Equal(t, "peer1", storedSourcePeer)
}
