package daemon

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/b0ase/clawminer/internal/block"
	"github.com/b0ase/clawminer/internal/difficulty"
	"github.com/b0ase/clawminer/internal/gossip"
	"github.com/b0ase/clawminer/internal/mining"
)

// startMining builds the difficulty adjuster, restores chain state from the
// store, wires the mining service's storage/announce/observer callbacks,
// configures a broadcaster per the configured mode, and starts the worker.
func (d *Daemon) startMining(ctx context.Context, minerAddr string) {
	adjustmentPeriod := int64(d.cfg.Mining.AdjustmentPeriod)
	if adjustmentPeriod < 1 {
		adjustmentPeriod = 144
	}
	targetBlockTime := d.cfg.Mining.TargetBlockTime
	if targetBlockTime <= 0 {
		targetBlockTime = 10 * time.Minute
	}

	d.adjuster = difficulty.NewAdjuster(d.cfg.Mining.Difficulty, adjustmentPeriod, targetBlockTime)
	logrus.Infof("daemon: difficulty adjuster target %v, adjust every %d blocks", targetBlockTime, adjustmentPeriod)

	d.miner = mining.NewService(mining.Config{
		MinItems:          d.cfg.Mining.MinItems,
		BatchSize:         d.cfg.Mining.BatchSize,
		SettlementTimeout: 30 * time.Second,
		HeartbeatInterval: d.cfg.Mining.HeartbeatInterval,
	}, d.adjuster, minerAddr)

	d.restoreChainState(adjustmentPeriod, targetBlockTime)

	d.miner.SetBlockStorage(d.persistMinedBlock)
	d.miner.SetBlockAnnouncer(d.announceBlock)
	d.miner.SetBlockObserver(d.onBlockObserved)
	d.miner.OnMintClaimed(d.onMintClaimed)
	d.miner.SetBroadcaster(d.buildBroadcaster(minerAddr))

	d.miner.Start(ctx)
	logrus.Infof("daemon: mining service started (address=%s difficulty=%d target_block_time=%v)",
		minerAddr, d.cfg.Mining.Difficulty, targetBlockTime)
}

func (d *Daemon) restoreChainState(adjustmentPeriod int64, targetBlockTime time.Duration) {
	tip, err := d.st.GetChainTip()
	if err != nil || tip == nil {
		return
	}
	var hash [32]byte
	if raw, err := hex.DecodeString(tip.Hash); err == nil && len(raw) == 32 {
		copy(hash[:], raw)
	}
	d.miner.RestoreChainState(hash)

	savedTarget, ok, err := d.st.GetConfigValue("difficulty_target")
	if err == nil && ok && savedTarget != "" {
		target := new(big.Int)
		if _, parsed := target.SetString(savedTarget, 16); parsed {
			totalCount, _ := d.st.GetPoIBlockCount()
			timestamps, _ := d.st.GetBlockTimestampsSince(adjustmentPeriod)
			d.adjuster.RestoreState(target, totalCount, timestamps)
		}
	}

	ownCount, _ := d.st.GetOwnBlockCount()
	logrus.Infof("daemon: restored chain tip=%s own_blocks=%d difficulty=%d",
		truncate(tip.Hash, 16), ownCount, d.adjuster.Difficulty())
}

// persistMinedBlock is the mining service's BlockStorageFunc: write through
// to the store and capture the difficulty target alongside the block.
func (d *Daemon) persistMinedBlock(hdr block.Header, hash [32]byte, items []block.WorkItem, isOwn bool, sourcePeer string) (int64, error) {
	height, err := d.st.InsertPoIBlock(hdr, hash, items, isOwn, sourcePeer)
	if err != nil {
		return 0, err
	}
	if err := d.st.SetConfigValue("difficulty_target", d.adjuster.TargetHex()); err != nil {
		logrus.Warnf("daemon: failed to persist difficulty target: %v", err)
	}
	return height, nil
}

// announceBlock is the mining service's BlockAnnouncerFunc: publish a
// BLOCK_ANNOUNCE envelope over gossip.
func (d *Daemon) announceBlock(hdr block.Header, hash [32]byte, height int64, itemCount int) {
	if d.gossipNode == nil {
		return
	}
	payload := gossip.BlockAnnouncePayload{
		Hash:         hex.EncodeToString(hash[:]),
		Height:       height,
		MinerAddress: hdr.MinerAddress,
		Timestamp:    hdr.Timestamp,
		Bits:         hdr.Bits,
		TargetHex:    d.adjuster.TargetHex(),
		MerkleRoot:   hex.EncodeToString(hdr.MerkleRoot[:]),
		PrevHash:     hex.EncodeToString(hdr.PrevHash[:]),
		Nonce:        hdr.Nonce,
		Version:      hdr.Version,
		ItemCount:    itemCount,
	}
	if err := d.gossipNode.Publish(gossip.TypeBlockAnnounce, payload); err != nil {
		logrus.Warnf("daemon: failed to publish block announce: %v", err)
		d.publishError("gossip-announce-failed", err)
		return
	}
	logrus.Infof("daemon: block announced to network %s (height %d)", truncate(payload.Hash, 16), height)
}

// onBlockObserved fires the event bus for both own and peer blocks.
func (d *Daemon) onBlockObserved(hdr block.Header, hash [32]byte, height int64, isOwn bool) {
	d.events.Publish(Event{
		Type:      "block-mined",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"hash":   hex.EncodeToString(hash[:]),
			"height": height,
			"is_own": isOwn,
			"miner":  hdr.MinerAddress,
		},
	})
	if isOwn {
		logrus.Infof("daemon: block mined %s (height %d)", truncate(hex.EncodeToString(hash[:]), 16), height)
	}
}

func (d *Daemon) onMintClaimed(txid string, amount int64, blockHash [32]byte) {
	hashHex := hex.EncodeToString(blockHash[:])
	logrus.Infof("daemon: mint claimed txid=%s amount=%d", txid, amount)
	if err := d.st.UpdateBlockMintTxid(hashHex, txid); err != nil {
		logrus.Warnf("daemon: failed to link mint txid to block: %v", err)
		d.publishError("mint-txid-link-failed", err)
	}
	d.events.Publish(Event{
		Type:      "mint-claimed",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"txid":       txid,
			"amount":     amount,
			"block_hash": hashHex,
		},
	})
}

func (d *Daemon) buildBroadcaster(minerAddr string) mining.Broadcaster {
	switch d.cfg.Mining.BroadcastMode {
	case "native":
		w := d.getWallet()
		if w == nil || d.cfg.Mining.TokenID == "" {
			logrus.Warn("daemon: native broadcast requires wallet + token_id, falling back to noop")
			return mining.NoopBroadcaster{}
		}
		logrus.Warnf("daemon: native broadcast mode requires a host-supplied chain client; none configured, falling back to noop")
		return mining.NoopBroadcaster{}
	case "http":
		if d.cfg.Mining.MintEndpoint == "" || d.cfg.Mining.TokenID == "" {
			logrus.Warn("daemon: http broadcast requires mint_endpoint + token_id, falling back to noop")
			return mining.NoopBroadcaster{}
		}
		logrus.Infof("daemon: http mint broadcaster configured: %s", d.cfg.Mining.MintEndpoint)
		return mining.NewHTTPServiceBroadcaster(d.cfg.Mining.MintEndpoint, "")
	default:
		logrus.Info("daemon: no broadcaster configured, blocks mined locally only")
		return mining.NoopBroadcaster{}
	}
}

// handleGossipMessage is the gossip node's single validated-inbound
// handler; it dispatches by envelope type.
func (d *Daemon) handleGossipMessage(senderID string, env *gossip.Envelope) {
	switch env.Type {
	case gossip.TypeWorkItemOffer:
		d.handleWorkItemOffer(senderID, env)
	case gossip.TypeBlockAnnounce:
		d.handleBlockAnnounce(senderID, env)
	default:
		logrus.Debugf("daemon: ignoring unknown gossip message type %q from %s", env.Type, truncate(senderID, 16))
	}
}

func (d *Daemon) handleWorkItemOffer(senderID string, env *gossip.Envelope) {
	var payload gossip.WorkItemOfferPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		logrus.Warnf("daemon: malformed WORK_ITEM_OFFER from %s: %v", truncate(senderID, 16), err)
		return
	}
	data, err := hex.DecodeString(payload.Data)
	if err != nil {
		logrus.Warnf("daemon: malformed work item payload from %s: %v", truncate(senderID, 16), err)
		return
	}
	if d.miner == nil {
		return
	}
	item := block.NewWorkItem(block.ItemType(payload.Type), data, payload.Timestamp)
	d.miner.SubmitWork(item)
}

func (d *Daemon) handleBlockAnnounce(senderID string, env *gossip.Envelope) {
	var payload gossip.BlockAnnouncePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		logrus.Warnf("daemon: malformed BLOCK_ANNOUNCE from %s: %v", truncate(senderID, 16), err)
		return
	}
	if d.miner == nil {
		return
	}

	hdr := block.Header{
		Version:      payload.Version,
		Timestamp:    payload.Timestamp,
		Bits:         payload.Bits,
		Nonce:        payload.Nonce,
		MinerAddress: payload.MinerAddress,
	}
	if raw, err := hex.DecodeString(payload.PrevHash); err == nil && len(raw) == 32 {
		copy(hdr.PrevHash[:], raw)
	}
	if raw, err := hex.DecodeString(payload.MerkleRoot); err == nil && len(raw) == 32 {
		copy(hdr.MerkleRoot[:], raw)
	}

	var claimedHash [32]byte
	if raw, err := hex.DecodeString(payload.Hash); err == nil && len(raw) == 32 {
		copy(claimedHash[:], raw)
	} else {
		logrus.Warnf("daemon: malformed block hash from %s", truncate(senderID, 16))
		return
	}

	if err := d.miner.AcceptPeerBlock(hdr, claimedHash, payload.Height, senderID, nil); err != nil {
		logrus.Warnf("daemon: rejected block from %s: %v", truncate(senderID, 16), err)
		return
	}
	logrus.Infof("daemon: accepted peer block %s from %s (difficulty bits=%d)",
		truncate(payload.Hash, 16), truncate(senderID, 16), payload.Bits)

	d.events.Publish(Event{
		Type:      "peer-block-accepted",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"hash":   payload.Hash,
			"sender": senderID,
			"height": payload.Height,
		},
	})
}
