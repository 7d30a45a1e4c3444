package daemon

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/b0ase/clawminer/internal/headers"
	"github.com/b0ase/clawminer/internal/identity"
	"github.com/b0ase/clawminer/internal/store"
	"github.com/b0ase/clawminer/pkg/errs"
)

// statusLoop periodically logs a one-line health summary and publishes a
// status-snapshot event for SSE subscribers that missed the initial one.
func (d *Daemon) statusLoop(ctx context.Context) {
	defer close(d.statusDone)

	// heartbeat_interval also drives the mining worker's idle-poll cadence
	// (internal/mining.Config.HeartbeatInterval), where a sub-second value
	// is the point: an idle miner should recheck the mempool quickly. A
	// human-facing log line at that cadence would just be noise, so the
	// status ticker clamps to a much coarser interval of its own.
	interval := d.cfg.Mining.HeartbeatInterval
	if interval < 60*time.Second {
		interval = 60 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.logStatus()
		}
	}
}

func (d *Daemon) logStatus() {
	peers := 0
	if d.gossipNode != nil {
		peers = d.gossipNode.PeerCount()
	}
	mempool := 0
	if d.miner != nil {
		mempool = d.miner.MempoolSize()
	}
	var total, own int64
	if d.st != nil {
		total, _ = d.st.GetPoIBlockCount()
		own, _ = d.st.GetOwnBlockCount()
	}
	difficulty := 0
	if d.adjuster != nil {
		difficulty = d.adjuster.Difficulty()
	}

	logrus.Infof("status: uptime=%s peers=%d mempool=%d blocks=%d own=%d difficulty=%d",
		d.Uptime().Round(time.Second), peers, mempool, total, own, difficulty)

	d.events.Publish(Event{
		Type:      "status-snapshot",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"uptime_seconds": d.Uptime().Seconds(),
			"peers":          peers,
			"mempool":        mempool,
			"blocks":         total,
			"own_blocks":     own,
			"difficulty":     difficulty,
		},
	})
}

// Stop shuts every subsystem down in the reverse order Start brought them
// up: status loop, mining, gossip, header sync, store. Safe to call once;
// a second call is a no-op beyond re-closing already-nil subsystems.
func (d *Daemon) Stop() {
	if d.statusCancel != nil {
		d.statusCancel()
		if d.statusDone != nil {
			<-d.statusDone
		}
	}
	if d.miner != nil {
		d.miner.Stop()
	}
	if d.gossipNode != nil {
		if err := d.gossipNode.Close(); err != nil {
			logrus.Warnf("daemon: gossip shutdown: %v", err)
		}
	}
	if d.headerSync != nil {
		d.headerSync.Stop()
	}
	if d.st != nil {
		if err := d.st.Close(); err != nil {
			logrus.Warnf("daemon: store shutdown: %v", err)
		}
	}
	logrus.Info("daemon: shutdown complete")
}

// NodeID returns this node's persisted identifier.
func (d *Daemon) NodeID() string { return d.nodeID }

// Uptime reports how long this process has been running.
func (d *Daemon) Uptime() time.Duration { return time.Since(d.startTime) }

// PeerCount reports the current gossip mesh size.
func (d *Daemon) PeerCount() int {
	if d.gossipNode == nil {
		return 0
	}
	return d.gossipNode.PeerCount()
}

// KnownPeerCount returns the number of stored peers whose status is
// active, connected or not.
func (d *Daemon) KnownPeerCount() int {
	if d.st == nil {
		return 0
	}
	peers, err := d.st.GetActivePeers()
	if err != nil {
		return 0
	}
	return len(peers)
}

// GossipPeerID returns this node's libp2p peer id, empty if gossip never
// started.
func (d *Daemon) GossipPeerID() string {
	if d.gossipNode == nil {
		return ""
	}
	return d.gossipNode.PeerID()
}

// NetworkStatus reports the difficulty adjuster's retarget-window state.
type NetworkStatus struct {
	TotalNetworkBlocks int64  `json:"total_network_blocks"`
	BlocksInPeriod     int64  `json:"blocks_in_period"`
	BlocksUntilAdjust  int64  `json:"blocks_until_adjust"`
	AdjustmentPeriod   int64  `json:"adjustment_period"`
	TargetBlockTimeS   int64  `json:"target_block_time_s"`
	Target             string `json:"target"`
	Difficulty         int    `json:"difficulty"`
}

// MiningStatus snapshots the mining worker for status endpoints.
type MiningStatus struct {
	Enabled      bool          `json:"enabled"`
	Running      bool          `json:"running"`
	MempoolSize  int           `json:"mempool_size"`
	HashRate     float64       `json:"hash_rate"`
	Difficulty   int           `json:"difficulty"`
	BlocksMined  int64         `json:"blocks_mined"`
	MinerAddress string        `json:"miner_address"`
	LastBlock    *store.PoIBlock `json:"last_block,omitempty"`
	Network      NetworkStatus `json:"network"`
}

// MiningStatus reports the current mining worker state.
func (d *Daemon) MiningStatus() MiningStatus {
	status := MiningStatus{MinerAddress: d.minerAddr}
	if d.adjuster != nil {
		status.Difficulty = d.adjuster.Difficulty()
		status.Network = NetworkStatus{
			TotalNetworkBlocks: d.adjuster.TotalBlocks(),
			BlocksInPeriod:     d.adjuster.BlocksInPeriod(),
			BlocksUntilAdjust:  d.adjuster.BlocksUntilAdjust(),
			AdjustmentPeriod:   d.adjuster.AdjustmentPeriod(),
			TargetBlockTimeS:   int64(d.adjuster.TargetBlockTime().Seconds()),
			Target:             d.adjuster.TargetHex(),
			Difficulty:         status.Difficulty,
		}
	}
	if d.st != nil {
		if own, err := d.st.GetOwnBlockCount(); err == nil {
			status.BlocksMined = own
		}
		if tip, err := d.st.GetChainTip(); err == nil {
			status.LastBlock = tip
		}
	}
	if d.miner == nil {
		return status
	}
	status.Enabled = true
	status.Running = d.miner.IsRunning()
	status.MempoolSize = d.miner.MempoolSize()
	status.HashRate = d.miner.HashRate()
	return status
}

// StartMining enables mining, lazily constructing the service on first call
// if the daemon booted with mining disabled.
func (d *Daemon) StartMining() error {
	if d.miner == nil {
		if d.rootCtx == nil {
			return errs.Wrapf(errs.ErrUnavailable, "daemon not started")
		}
		d.startMining(d.rootCtx, d.minerAddr)
		return nil
	}
	if d.miner.IsRunning() {
		return nil
	}
	d.miner.Start(d.rootCtx)
	return nil
}

// StopMining disables mining without tearing down gossip or header sync.
func (d *Daemon) StopMining() error {
	if d.miner == nil || !d.miner.IsRunning() {
		return nil
	}
	d.miner.Stop()
	return nil
}

// HeaderSyncStatus reports SPV header-sync progress.
func (d *Daemon) HeaderSyncStatus() headers.Progress {
	if d.headerSync == nil {
		return headers.Progress{}
	}
	return d.headerSync.Progress()
}

// WalletStatus reports the funding/mining address without exposing the
// private key or WIF.
type WalletStatus struct {
	Configured bool   `json:"configured"`
	Address    string `json:"address"`
}

// WalletStatus reports the current wallet's public address, if any.
func (d *Daemon) WalletStatus() WalletStatus {
	w := d.getWallet()
	if w == nil {
		return WalletStatus{Configured: false}
	}
	return WalletStatus{Configured: true, Address: w.Address}
}

// ImportWallet replaces the active wallet with the one encoded by wif and
// persists it so it survives a restart.
func (d *Daemon) ImportWallet(wif string) error {
	w, err := identity.Load(wif)
	if err != nil {
		return errs.Wrapf(errs.ErrValidationReject, "import wallet: %v", err)
	}
	if err := d.st.SetConfigValue("wallet_wif", w.WIF); err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "persist imported wallet: %v", err)
	}
	d.setWallet(w)
	logrus.Infof("wallet: imported wallet %s", w.Address)
	return nil
}

// ExportWIF returns the active wallet's WIF-encoded private key.
func (d *Daemon) ExportWIF() (string, error) {
	w := d.getWallet()
	if w == nil {
		return "", errs.Wrapf(errs.ErrUnavailable, "no wallet configured")
	}
	return w.WIF, nil
}

// GenerateNewWallet replaces the active wallet with a freshly generated
// one and persists it, returning the new funding address.
func (d *Daemon) GenerateNewWallet() (string, error) {
	w, err := identity.Generate()
	if err != nil {
		return "", errs.Wrapf(errs.ErrUnavailable, "generate wallet: %v", err)
	}
	if err := d.st.SetConfigValue("wallet_wif", w.WIF); err != nil {
		return "", errs.Wrapf(errs.ErrStoreUnavailable, "persist generated wallet: %v", err)
	}
	d.setWallet(w)
	logrus.Infof("wallet: generated new wallet %s", w.Address)
	return w.Address, nil
}

// ValidateMerkleRoot checks whether root has been observed at height by the
// header-sync service.
func (d *Daemon) ValidateMerkleRoot(root string, height int64) (bool, error) {
	if d.headerSync == nil {
		return false, errs.Wrapf(errs.ErrUnavailable, "header sync not configured")
	}
	return d.headerSync.ValidateMerkleRoot(root, height)
}

// GetRecentBlocks returns the most recently recorded blocks, newest first.
func (d *Daemon) GetRecentBlocks(limit, offset int) ([]store.PoIBlock, error) {
	return d.st.GetRecentPoIBlocks(limit, offset)
}

// GetBlockCounts returns the total and own-mined block counts.
func (d *Daemon) GetBlockCounts() (total, own int64, err error) {
	total, err = d.st.GetPoIBlockCount()
	if err != nil {
		return 0, 0, err
	}
	own, err = d.st.GetOwnBlockCount()
	return total, own, err
}

// GetBlockByHash looks up a single block by its hex-encoded hash.
func (d *Daemon) GetBlockByHash(hash string) (*store.PoIBlock, error) {
	return d.st.GetPoIBlockByHash(hash)
}

// GetBlockByHeight looks up a single block by height.
func (d *Daemon) GetBlockByHeight(height int64) (*store.PoIBlock, error) {
	return d.st.GetPoIBlockByHeight(height)
}
