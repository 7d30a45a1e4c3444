// Package headers syncs SPV block headers from an external Block Headers
// Service so the daemon can validate merkle roots without holding full
// chain state. Uses net/http directly: this is a small polling REST client
// with no need for the daemon's libp2p/gossip stack or any heavier HTTP
// client library from the rest of the dependency surface.
package headers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/b0ase/clawminer/internal/store"
	"github.com/b0ase/clawminer/pkg/errs"
)

// Config configures the BHS client and sync cadence.
type Config struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	SyncOnBoot   bool
}

// Progress is a point-in-time snapshot of sync state for status reporting.
type Progress struct {
	IsSyncing      bool      `json:"is_syncing"`
	TotalHeaders   int64     `json:"total_headers"`
	HighestHeight  int64     `json:"highest_height"`
	ChainTipHeight int64     `json:"chain_tip_height"`
	LastSyncedAt   time.Time `json:"last_synced_at"`
}

// Store is the subset of the persisted store the sync service needs.
type Store interface {
	HighestHeaderHeight() (int64, error)
	UpsertHeaders(headers []store.Header) error
	HasMerkleRoot(root string, height int64) (bool, error)
}

// Service polls a BHS for new headers and keeps the local store caught up.
type Service struct {
	cfg    Config
	store  Store
	client *http.Client

	mu       sync.Mutex
	progress Progress

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a header sync service. A blank BaseURL disables the service
// entirely; callers should still call Start/Stop, both of which become
// no-ops.
func New(cfg Config, st Store) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 2000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Service{
		cfg:    cfg,
		store:  st,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Start launches the sync loop. If SyncOnBoot is set, an initial full sync
// runs before the first poll tick. A no-op when BaseURL is unset.
func (s *Service) Start(ctx context.Context) {
	if s.cfg.BaseURL == "" {
		logrus.Info("headers: no BHS URL configured, sync disabled")
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop()
}

// Stop cancels the sync loop and waits for the in-flight batch to flush.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Service) loop() {
	defer s.wg.Done()

	if s.cfg.SyncOnBoot {
		s.setSyncing(true)
		if err := s.syncOnce(); err != nil {
			logrus.Warnf("headers: initial sync failed: %v", err)
		}
		s.setSyncing(false)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.setSyncing(true)
			if err := s.syncOnce(); err != nil {
				logrus.Warnf("headers: incremental sync failed: %v", err)
			}
			s.setSyncing(false)
		}
	}
}

// syncOnce fetches the remote tip height, then fetches and batch-inserts
// every missing height between the local high-water mark and the tip.
// Per-height fetch failures retry with linear backoff up to MaxRetries,
// after which sync pauses until the next tick.
func (s *Service) syncOnce() error {
	tip, err := s.fetchTipHeight()
	if err != nil {
		return errs.Wrapf(errs.ErrNetworkTransient, "fetch tip height: %v", err)
	}
	s.mu.Lock()
	s.progress.ChainTipHeight = tip
	s.mu.Unlock()

	local, err := s.store.HighestHeaderHeight()
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "read local height: %v", err)
	}

	batch := make([]store.Header, 0, s.cfg.BatchSize)
	for h := local + 1; h <= tip; h++ {
		select {
		case <-s.ctx.Done():
			return s.flush(batch)
		default:
		}

		hdr, err := s.fetchHeaderWithRetry(h)
		if err != nil {
			logrus.Warnf("headers: giving up on height %d after retries: %v", h, err)
			if ferr := s.flush(batch); ferr != nil {
				return ferr
			}
			return nil
		}
		batch = append(batch, *hdr)

		if len(batch) >= s.cfg.BatchSize {
			if err := s.flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := s.flush(batch); err != nil {
		return err
	}

	s.mu.Lock()
	s.progress.HighestHeight = tip
	s.progress.LastSyncedAt = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *Service) flush(batch []store.Header) error {
	if len(batch) == 0 {
		return nil
	}
	if err := s.store.UpsertHeaders(batch); err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "upsert header batch: %v", err)
	}
	s.mu.Lock()
	s.progress.TotalHeaders += int64(len(batch))
	s.mu.Unlock()
	return nil
}

func (s *Service) fetchHeaderWithRetry(height int64) (*store.Header, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		hdr, err := s.fetchHeader(height)
		if err == nil {
			return hdr, nil
		}
		lastErr = err
		select {
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
		}
	}
	return nil, lastErr
}

type bhsHeader struct {
	Height     int64  `json:"height"`
	Hash       string `json:"hash"`
	Version    int32  `json:"version"`
	MerkleRoot string `json:"merkleRoot"`
	Timestamp  int64  `json:"timestamp"`
	Bits       uint32 `json:"bits"`
	Nonce      uint64 `json:"nonce"`
	PrevHash   string `json:"prevHash"`
}

func (s *Service) fetchHeader(height int64) (*store.Header, error) {
	var h bhsHeader
	if err := s.get(fmt.Sprintf("/api/v1/chain/header/byHeight/%d", height), &h); err != nil {
		return nil, err
	}
	return &store.Header{
		Height:     h.Height,
		Hash:       h.Hash,
		Version:    h.Version,
		MerkleRoot: h.MerkleRoot,
		Timestamp:  h.Timestamp,
		Bits:       h.Bits,
		Nonce:      h.Nonce,
		PrevHash:   h.PrevHash,
	}, nil
}

func (s *Service) fetchTipHeight() (int64, error) {
	var tip struct {
		Height int64 `json:"height"`
	}
	if err := s.get("/api/v1/chain/tip", &tip); err != nil {
		return 0, err
	}
	return tip.Height, nil
}

func (s *Service) get(path string, out interface{}) error {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *Service) setSyncing(v bool) {
	s.mu.Lock()
	s.progress.IsSyncing = v
	s.mu.Unlock()
}

// Progress returns a snapshot of current sync state.
func (s *Service) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// ValidateMerkleRoot checks the local header store first; on a miss, if a
// BHS is configured, it falls back to a remote isValidRootForHeight query
// rather than treating "not seen locally" as "invalid".
func (s *Service) ValidateMerkleRoot(root string, height int64) (bool, error) {
	if s.store != nil {
		ok, err := s.store.HasMerkleRoot(root, height)
		if err != nil {
			return false, errs.Wrapf(errs.ErrStoreUnavailable, "validate merkle root: %v", err)
		}
		if ok {
			return true, nil
		}
	}

	if s.cfg.BaseURL == "" {
		return false, nil
	}
	return s.fetchValidRootForHeight(root, height)
}

func (s *Service) fetchValidRootForHeight(root string, height int64) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	q := url.Values{}
	q.Set("root", root)
	q.Set("height", fmt.Sprintf("%d", height))
	path := "/api/v1/chain/validRoot?" + q.Encode()
	if err := s.get(path, &resp); err != nil {
		return false, errs.Wrapf(errs.ErrNetworkTransient, "remote validity query: %v", err)
	}
	return resp.Valid, nil
}
