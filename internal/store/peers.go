package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/b0ase/clawminer/pkg/errs"
)

// PeerRecord is a gossip peer's persisted reputation and connectivity
// history.
type PeerRecord struct {
	PeerID             string
	LastSeenAddr       string
	Reputation         int
	ValidCount         int64
	InvalidCount       int64
	ConnectionFailures int64
	Status             string
	DiscoverySource    string
	UpdatedAt          int64
}

const (
	minReputation = 0
	maxReputation = 100
	initialRep    = 50
)

// UpsertPeerSeen records that a peer was observed, creating its row with the
// default reputation if new.
func (s *Store) UpsertPeerSeen(peerID, addr, discoverySource string) error {
	_, err := s.db.Exec(`
		INSERT INTO peers (peer_id, last_seen_addr, discovery_source, reputation, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			last_seen_addr = excluded.last_seen_addr,
			updated_at = excluded.updated_at`,
		peerID, addr, discoverySource, initialRep, time.Now().UnixMilli())
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "upsert peer seen: %v", err)
	}
	return nil
}

// AdjustPeerReputation applies delta to a peer's reputation, clamped to
// [0, 100], and increments the matching valid/invalid counter.
func (s *Store) AdjustPeerReputation(peerID string, delta int, wasValid bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "begin tx: %v", err)
	}
	defer tx.Rollback()

	var rep int
	err = tx.QueryRow(`SELECT reputation FROM peers WHERE peer_id = ?`, peerID).Scan(&rep)
	if errors.Is(err, sql.ErrNoRows) {
		rep = initialRep
	} else if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "read reputation: %v", err)
	}

	rep += delta
	if rep < minReputation {
		rep = minReputation
	}
	if rep > maxReputation {
		rep = maxReputation
	}

	counterCol := "invalid_count"
	if wasValid {
		counterCol = "valid_count"
	}

	_, err = tx.Exec(`
		INSERT INTO peers (peer_id, reputation, `+counterCol+`, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			reputation = ?,
			`+counterCol+` = `+counterCol+` + 1,
			updated_at = excluded.updated_at`,
		peerID, rep, time.Now().UnixMilli(), rep)
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "adjust reputation: %v", err)
	}
	return tx.Commit()
}

// RecordConnectionFailure increments a peer's failure counter, used by the
// gossip layer's backoff policy.
func (s *Store) RecordConnectionFailure(peerID string) error {
	_, err := s.db.Exec(`
		INSERT INTO peers (peer_id, connection_failures, updated_at) VALUES (?, 1, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			connection_failures = connection_failures + 1,
			updated_at = excluded.updated_at`, peerID, time.Now().UnixMilli())
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "record connection failure: %v", err)
	}
	return nil
}

// GetActivePeers returns peers with status = 'active', ordered by
// reputation descending.
func (s *Store) GetActivePeers() ([]PeerRecord, error) {
	rows, err := s.db.Query(`
		SELECT peer_id, last_seen_addr, reputation, valid_count, invalid_count, connection_failures, status, discovery_source, updated_at
		FROM peers WHERE status = 'active' ORDER BY reputation DESC`)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrStoreUnavailable, "query active peers: %v", err)
	}
	defer rows.Close()

	var out []PeerRecord
	for rows.Next() {
		var p PeerRecord
		if err := rows.Scan(&p.PeerID, &p.LastSeenAddr, &p.Reputation, &p.ValidCount, &p.InvalidCount,
			&p.ConnectionFailures, &p.Status, &p.DiscoverySource, &p.UpdatedAt); err != nil {
			return nil, errs.Wrapf(errs.ErrStoreUnavailable, "scan peer: %v", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetPeerStatus marks a peer banned, inactive, or active, e.g. once
// reputation bottoms out.
func (s *Store) SetPeerStatus(peerID, status string) error {
	_, err := s.db.Exec(`UPDATE peers SET status = ?, updated_at = ? WHERE peer_id = ?`,
		status, time.Now().UnixMilli(), peerID)
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "set peer status: %v", err)
	}
	return nil
}

// LogGossipMessage appends a row to the gossip provenance log.
func (s *Store) LogGossipMessage(peerID, msgType string, accepted bool, reason string) error {
	_, err := s.db.Exec(`
		INSERT INTO gossip_log (peer_id, msg_type, accepted, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`, peerID, msgType, boolToInt(accepted), reason, time.Now().UnixMilli())
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "log gossip message: %v", err)
	}
	return nil
}
