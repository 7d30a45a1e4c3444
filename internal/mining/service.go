package mining

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/b0ase/clawminer/internal/block"
	"github.com/b0ase/clawminer/internal/difficulty"
	"github.com/b0ase/clawminer/internal/pow"
	"github.com/b0ase/clawminer/pkg/errs"
)

// BlockStorageFunc persists a mined or accepted block, returning its
// assigned height.
type BlockStorageFunc func(hdr block.Header, hash [32]byte, items []block.WorkItem, isOwn bool, sourcePeer string) (height int64, err error)

// BlockAnnouncerFunc publishes a mined block to the gossip mesh.
type BlockAnnouncerFunc func(hdr block.Header, hash [32]byte, height int64, itemCount int)

// OnBlockFunc is called after a block (own or peer) is durably recorded.
type OnBlockFunc func(hdr block.Header, hash [32]byte, height int64, isOwn bool)

// OnMintClaimedFunc is called once the broadcaster confirms settlement.
type OnMintClaimedFunc func(txid string, amount int64, blockHash [32]byte)

// Config tunes mining-service behaviour.
type Config struct {
	MinItems          int
	BatchSize         int
	MempoolCapacity   int
	NonceQuantum      uint64 // nonces attempted per loop iteration before checking for shutdown
	SettlementTimeout time.Duration
	MintAmount        int64

	// HeartbeatInterval is the worker's base idle-poll interval: how often
	// it rechecks the mempool while it sits below MinItems. Backoff doubles
	// from here up to a fixed ceiling so an idle node doesn't spin.
	HeartbeatInterval time.Duration
}

// Service owns the mempool, the single mining worker goroutine, and the
// settlement dispatch pool. It is the exclusive writer of
// mempool-drains/block-assembly described for the mining worker.
type Service struct {
	cfg Config

	mempool    *Mempool
	adjuster   *difficulty.Adjuster
	broadcaster Broadcaster

	storeFn    BlockStorageFunc
	announceFn BlockAnnouncerFunc
	onBlock    OnBlockFunc
	onMint     OnMintClaimedFunc

	minerAddress string

	mu       sync.Mutex
	tipHash  [32]byte
	running  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	settleWg sync.WaitGroup
	settleCh chan settleJob

	hashesAttempted atomic.Uint64
	startedAt       time.Time
}

type settleJob struct {
	req       SettlementRequest
	blockHash [32]byte
}

// NewService wires a mempool and difficulty adjuster into a mining service.
// Callbacks are set with the Set* methods before Start.
func NewService(cfg Config, adjuster *difficulty.Adjuster, minerAddress string) *Service {
	if cfg.MinItems <= 0 {
		cfg.MinItems = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.NonceQuantum == 0 {
		cfg.NonceQuantum = 250_000
	}
	if cfg.SettlementTimeout <= 0 {
		cfg.SettlementTimeout = 30 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 250 * time.Millisecond
	}
	return &Service{
		cfg:          cfg,
		mempool:      NewMempool(cfg.MempoolCapacity),
		adjuster:     adjuster,
		broadcaster:  NoopBroadcaster{},
		minerAddress: minerAddress,
		settleCh:     make(chan settleJob, 64),
	}
}

// SetBroadcaster wires the settlement broadcaster. Defaults to
// NoopBroadcaster if never called.
func (s *Service) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

// SetBlockStorage wires the persistence callback.
func (s *Service) SetBlockStorage(fn BlockStorageFunc) { s.storeFn = fn }

// SetBlockAnnouncer wires the gossip-announce callback.
func (s *Service) SetBlockAnnouncer(fn BlockAnnouncerFunc) { s.announceFn = fn }

// SetBlockObserver wires the post-record OnBlock callback.
func (s *Service) SetBlockObserver(fn OnBlockFunc) { s.onBlock = fn }

// OnMintClaimed wires the settlement-confirmed callback.
func (s *Service) OnMintClaimed(fn OnMintClaimedFunc) { s.onMint = fn }

// SubmitWork is the only write path into the mempool; safe from any
// goroutine.
func (s *Service) SubmitWork(item block.WorkItem) {
	s.mempool.Submit(item)
}

// RestoreChainState seeds the worker's notion of the chain tip at boot.
func (s *Service) RestoreChainState(tipHash [32]byte) {
	s.mu.Lock()
	s.tipHash = tipHash
	s.mu.Unlock()
}

// MempoolSize reports the current mempool depth for status endpoints.
func (s *Service) MempoolSize() int { return s.mempool.Size() }

// HashRate returns the average nonce attempts per second since Start,
// zero if the worker has not run long enough to estimate.
func (s *Service) HashRate() float64 {
	s.mu.Lock()
	started := s.startedAt
	s.mu.Unlock()
	if started.IsZero() {
		return 0
	}
	elapsed := time.Since(started).Seconds()
	if elapsed < 1 {
		return 0
	}
	return float64(s.hashesAttempted.Load()) / elapsed
}

// Start launches the mining worker and settlement dispatcher goroutines.
func (s *Service) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	s.settleCh = make(chan settleJob, 64)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.mineLoop()

	const dispatchWorkers = 4
	for i := 0; i < dispatchWorkers; i++ {
		s.settleWg.Add(1)
		go s.settleLoop()
	}
}

// Stop signals the worker to exit at the next quantum boundary and gives
// in-flight settlement jobs a bounded grace period before abandoning them.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	done := make(chan struct{})
	go func() {
		close(s.settleCh)
		s.settleWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logrus.Warn("mining: settlement dispatch grace period exceeded, abandoning in-flight jobs")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning reports whether the mining worker is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) mineLoop() {
	defer s.wg.Done()

	backoff := s.cfg.HeartbeatInterval
	maxBackoff := 2 * time.Second
	if maxBackoff < backoff {
		maxBackoff = backoff
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if s.mempool.Size() < s.cfg.MinItems {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = s.cfg.HeartbeatInterval

		s.mineOneBlock()
	}
}

func (s *Service) mineOneBlock() {
	items := s.mempool.Drain(s.cfg.BatchSize)
	if len(items) == 0 {
		return
	}

	ids := make([][32]byte, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	merkle := block.MerkleRoot(block.SortItemIDs(ids))

	s.mu.Lock()
	prevHash := s.tipHash
	s.mu.Unlock()

	hdr := block.Header{
		Version:      1,
		PrevHash:     prevHash,
		MerkleRoot:   merkle,
		Timestamp:    time.Now().UnixMilli(),
		Bits:         s.adjuster.Bits(),
		MinerAddress: s.minerAddress,
	}

	nonce, hash, ok := s.searchNonce(hdr)
	if !ok {
		// Shutdown requested mid-search; the drained items are lost from the
		// mempool for this run, matching "never block shutdown on mining".
		return
	}
	hdr.Nonce = nonce

	s.adjuster.RecordBlock(time.UnixMilli(hdr.Timestamp))

	var height int64
	var err error
	if s.storeFn != nil {
		height, err = s.storeFn(hdr, hash, items, true, "")
		if err != nil {
			logrus.Errorf("mining: failed to persist mined block: %v", err)
			return
		}
	}

	s.mu.Lock()
	s.tipHash = hash
	s.mu.Unlock()

	if s.announceFn != nil {
		s.announceFn(hdr, hash, height, len(items))
	}
	if s.onBlock != nil {
		s.onBlock(hdr, hash, height, true)
	}

	if s.broadcaster != nil {
		commitment := commitmentHex(ids)
		s.enqueueSettlement(settleJob{
			req: SettlementRequest{
				MinerAddress:   s.minerAddress,
				Amount:         s.cfg.MintAmount,
				Nonce:          nonce,
				WorkCommitment: commitment,
				BlockHash:      hex.EncodeToString(hash[:]),
			},
			blockHash: hash,
		})
	}
}

// searchNonce hunts for a nonce satisfying CheckDifficulty, yielding control
// back to the caller every NonceQuantum attempts so shutdown is observed
// promptly. Returns ok=false if the context was cancelled mid-search.
func (s *Service) searchNonce(hdr block.Header) (uint64, [32]byte, bool) {
	var nonce uint64
	if b, err := rand.Int(rand.Reader, big.NewInt(1<<32)); err == nil {
		nonce = b.Uint64()
	}

	for {
		end := nonce + s.cfg.NonceQuantum
		for ; nonce < end; nonce++ {
			hdr.Nonce = nonce
			hash := pow.CalculateBlockHash(hdr)
			s.hashesAttempted.Add(1)
			if pow.CheckDifficulty(hash, hdr.Bits) {
				return nonce, hash, true
			}
		}
		select {
		case <-s.ctx.Done():
			return 0, [32]byte{}, false
		default:
		}
	}
}

func commitmentHex(ids [][32]byte) string {
	h := make([]byte, 0, len(ids)*32)
	for _, id := range ids {
		h = append(h, id[:]...)
	}
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(ids)))
	return hex.EncodeToString(append(lenBuf[:], h...))
}

func (s *Service) enqueueSettlement(job settleJob) {
	select {
	case s.settleCh <- job:
	default:
		logrus.Warn("mining: settlement dispatch queue full, dropping job")
	}
}

func (s *Service) settleLoop() {
	defer s.settleWg.Done()
	for job := range s.settleCh {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SettlementTimeout)
		txid, err := s.broadcaster.Broadcast(ctx, job.req)
		cancel()
		if err != nil {
			logrus.Warnf("mining: settlement broadcast failed for block %x: %v", job.blockHash, err)
			continue
		}
		if s.onMint != nil {
			s.onMint(txid, job.req.Amount, job.blockHash)
		}
	}
}

// AcceptPeerBlock validates and records a block announced by a peer. Never
// enqueues settlement: peer blocks are never minted locally.
func (s *Service) AcceptPeerBlock(hdr block.Header, claimedHash [32]byte, height int64, sourcePeer string, items []block.WorkItem) error {
	hash := pow.CalculateBlockHash(hdr)
	if hash != claimedHash {
		return errs.Wrapf(errs.ErrValidationReject, "hash mismatch: computed %x claimed %x", hash, claimedHash)
	}
	if !pow.CheckDifficulty(hash, hdr.Bits) {
		return errs.Wrapf(errs.ErrValidationReject, "block fails difficulty check")
	}

	s.adjuster.RecordBlock(time.UnixMilli(hdr.Timestamp))

	var storedHeight int64
	var err error
	if s.storeFn != nil {
		storedHeight, err = s.storeFn(hdr, hash, items, false, sourcePeer)
		if err != nil {
			return errs.Wrapf(errs.ErrStoreUnavailable, "persist peer block: %v", err)
		}
	} else {
		storedHeight = height
	}

	// Peer blocks are stored and tagged but never adopted as the local
	// mining cursor's prevHash — fork/longest-chain reconciliation across
	// competing tips is not resolved here.

	if s.onBlock != nil {
		s.onBlock(hdr, hash, storedHeight, false)
	}
	return nil
}
