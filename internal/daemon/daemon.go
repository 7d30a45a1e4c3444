// Package daemon orchestrates every ClawMiner subsystem: it owns boot
// order, callback wiring between store/mining/gossip/headers, and shutdown.
//
// The boot sequence, wallet-resolution cascade, and callback wiring below
// are adapted from a ClawMiner daemon's own orchestrator, generalized from
// its hardcoded BSV/HTTP broadcaster pair to the pluggable Broadcaster
// interface and converted from the standard log package to logrus to match
// the rest of this codebase's structured logging.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/b0ase/clawminer/internal/difficulty"
	"github.com/b0ase/clawminer/internal/gossip"
	"github.com/b0ase/clawminer/internal/headers"
	"github.com/b0ase/clawminer/internal/identity"
	"github.com/b0ase/clawminer/internal/mining"
	"github.com/b0ase/clawminer/internal/store"
	"github.com/b0ase/clawminer/pkg/config"
	"github.com/b0ase/clawminer/pkg/errs"
)

// Daemon owns and wires every subsystem for the lifetime of one process.
type Daemon struct {
	cfg       *config.Config
	nodeID    string
	startTime time.Time

	walletMu sync.RWMutex
	wallet   *identity.Wallet

	st         *store.Store
	gossipNode *gossip.Node
	miner      *mining.Service
	headerSync *headers.Service
	adjuster   *difficulty.Adjuster

	rootCtx   context.Context
	minerAddr string

	statusCancel context.CancelFunc
	statusDone   chan struct{}

	events *EventBus
}

// New creates an unstarted daemon bound to cfg.
func New(cfg *config.Config) *Daemon {
	return &Daemon{cfg: cfg, events: NewEventBus()}
}

// NewWithStore binds a daemon to an already-open store and resolves its
// node id and wallet immediately, without starting gossip, mining, or
// header sync. Used by tests and by any embedder that only needs the
// read/control surface against a store without running the network stack.
func NewWithStore(cfg *config.Config, st *store.Store) (*Daemon, error) {
	d := New(cfg)
	d.st = st
	d.startTime = time.Now()

	nodeID, err := st.GetOrCreateNodeID()
	if err != nil {
		return nil, errs.Wrapf(errs.ErrStoreUnavailable, "get node id: %v", err)
	}
	d.nodeID = nodeID
	d.minerAddr = d.resolveWallet()
	return d, nil
}

// Events returns the daemon's event bus, consumed by the HTTP API's SSE
// endpoint.
func (d *Daemon) Events() *EventBus { return d.events }

// Start boots every subsystem in order: store, wallet, header sync, gossip
// (with bootstrap dialing), mining, status ticker, returning once boot has
// completed (the HTTP API is started separately by the caller once this
// returns, so it can be wired with a reference to d).
func (d *Daemon) Start(ctx context.Context) error {
	d.startTime = time.Now()
	d.rootCtx = ctx

	st, err := store.Open(d.cfg.DBPath(), d.cfg.ContentDir())
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "open store: %v", err)
	}
	d.st = st

	nodeID, err := st.GetOrCreateNodeID()
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "get node id: %v", err)
	}
	d.nodeID = nodeID
	logrus.Infof("daemon: node id %s", truncate(nodeID, 16))

	minerAddr := d.resolveWallet()
	d.minerAddr = minerAddr

	d.headerSync = headers.New(headers.Config{
		BaseURL:      d.cfg.Headers.BHSURL,
		APIKey:       d.cfg.Headers.BHSAPIKey,
		SyncOnBoot:   d.cfg.Headers.SyncOnBoot,
		PollInterval: d.cfg.Headers.PollInterval,
		BatchSize:    d.cfg.Headers.BatchSize,
		MaxRetries:   d.cfg.Headers.MaxRetries,
	}, st)
	d.headerSync.Start(ctx)

	identityKey, err := gossip.LoadOrCreateIdentity(st)
	if err != nil {
		return errs.Wrapf(errs.ErrNetworkTransient, "load gossip identity: %v", err)
	}

	d.gossipNode, err = gossip.NewNode(gossip.Config{
		ListenPort:     d.cfg.Gossip.Port,
		Topic:          "clawminer-poi",
		BootstrapPeers: d.cfg.Gossip.BootstrapPeers,
		EnableDHT:      d.cfg.Gossip.EnableDHT,
		EnableMDNS:     d.cfg.Gossip.EnableMDNS,
		DiscoveryTag:   d.cfg.Gossip.DiscoveryTag,
		MaxPeers:       d.cfg.Gossip.MaxPeers,
	}, identityKey, st)
	if err != nil {
		return errs.Wrapf(errs.ErrNetworkTransient, "start gossip node: %v", err)
	}

	if d.cfg.Mining.Enabled {
		d.startMining(ctx, minerAddr)
	}

	d.gossipNode.SetHandler(d.handleGossipMessage)

	statusCtx, cancel := context.WithCancel(ctx)
	d.statusCancel = cancel
	d.statusDone = make(chan struct{})
	go d.statusLoop(statusCtx)

	logrus.Info("daemon: all systems online")
	return nil
}

// resolveWallet runs the four-step resolution cascade: configured WIF,
// configured address override, previously persisted WIF, or a freshly
// generated wallet — exactly the cascade an operator expects across
// restarts with a changing config.
func (d *Daemon) resolveWallet() string {
	minerAddr := ""

	if d.cfg.Wallet.Key != "" {
		w, err := identity.Load(d.cfg.Wallet.Key)
		if err != nil {
			logrus.Warnf("wallet: configured WIF load failed: %v (continuing without signing key)", err)
		} else {
			d.setWallet(w)
			minerAddr = w.Address
			logrus.Infof("wallet: loaded signing key (funding address: %s)", w.Address)
		}
	}

	if d.cfg.Wallet.Address != "" {
		if minerAddr != "" && minerAddr != d.cfg.Wallet.Address {
			logrus.Infof("wallet: mining rewards -> %s (funding via %s)", d.cfg.Wallet.Address, minerAddr)
		} else {
			logrus.Infof("wallet: mining rewards -> %s", d.cfg.Wallet.Address)
		}
		minerAddr = d.cfg.Wallet.Address
	}

	if minerAddr == "" {
		if savedWIF, ok, err := d.st.GetConfigValue("wallet_wif"); err == nil && ok && savedWIF != "" {
			w, err := identity.Load(savedWIF)
			if err != nil {
				logrus.Warnf("wallet: persisted WIF load failed: %v (will regenerate)", err)
			} else {
				d.setWallet(w)
				minerAddr = w.Address
				logrus.Infof("wallet: loaded persisted wallet %s", minerAddr)
			}
		}
	}

	if minerAddr == "" {
		w, err := identity.Generate()
		if err != nil {
			logrus.Errorf("wallet: generation failed: %v", err)
			return ""
		}
		if err := d.st.SetConfigValue("wallet_wif", w.WIF); err != nil {
			logrus.Warnf("wallet: failed to persist generated WIF: %v", err)
		}
		d.setWallet(w)
		minerAddr = w.Address
		logrus.Infof("wallet: generated and saved new wallet %s", minerAddr)
	}

	return minerAddr
}

func (d *Daemon) setWallet(w *identity.Wallet) {
	d.walletMu.Lock()
	d.wallet = w
	d.walletMu.Unlock()
}

func (d *Daemon) getWallet() *identity.Wallet {
	d.walletMu.RLock()
	defer d.walletMu.RUnlock()
	return d.wallet
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
