package store

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/b0ase/clawminer/internal/block"
	"github.com/b0ase/clawminer/pkg/errs"
)

// PoIBlock is the persisted row shape for a mined or accepted block.
type PoIBlock struct {
	Hash         string
	Height       int64
	PrevHash     string
	MerkleRoot   string
	MinerAddress string
	Timestamp    int64
	Bits         uint32
	Nonce        uint64
	Version      int32
	ItemCount    int
	IsOwn        bool
	SourcePeer   string
	TargetHex    string
	MintTxid     string
}

// InsertPoIBlock upserts a block by hash, assigning it the next height when
// it is new. Re-inserting the same hash writes nothing and returns the
// existing height, so re-announcements from gossip never duplicate rows.
// A non-empty sourcePeer not yet in the peers table is recorded there first.
func (s *Store) InsertPoIBlock(hdr block.Header, hash [32]byte, items []block.WorkItem, isOwn bool, sourcePeer string) (int64, error) {
	hashHex := hex.EncodeToString(hash[:])

	tx, err := s.db.Begin()
	if err != nil {
		return 0, errs.Wrapf(errs.ErrStoreUnavailable, "begin tx: %v", err)
	}
	defer tx.Rollback()

	var existingHeight int64
	err = tx.QueryRow(`SELECT height FROM poi_blocks WHERE hash = ?`, hashHex).Scan(&existingHeight)
	if err == nil {
		if cmtErr := tx.Commit(); cmtErr != nil {
			return 0, errs.Wrapf(errs.ErrStoreUnavailable, "commit: %v", cmtErr)
		}
		return existingHeight, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, errs.Wrapf(errs.ErrStoreUnavailable, "lookup existing block: %v", err)
	}

	var nextHeight int64
	if qerr := tx.QueryRow(`SELECT COALESCE(MAX(height), -1) + 1 FROM poi_blocks`).Scan(&nextHeight); qerr != nil {
		return 0, errs.Wrapf(errs.ErrStoreUnavailable, "compute next height: %v", qerr)
	}

	itemsJSON, mErr := json.Marshal(itemIDHexes(items))
	if mErr != nil {
		return 0, errs.Wrapf(errs.ErrStoreUnavailable, "marshal items: %v", mErr)
	}

	if sourcePeer != "" {
		if _, perr := tx.Exec(`INSERT INTO peers (peer_id) VALUES (?) ON CONFLICT(peer_id) DO NOTHING`, sourcePeer); perr != nil {
			return 0, errs.Wrapf(errs.ErrStoreUnavailable, "record source peer: %v", perr)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO poi_blocks
			(hash, height, prev_hash, merkle_root, miner_address, timestamp, bits, nonce, version, item_count, is_own, source_peer, items_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hashHex, nextHeight, hex.EncodeToString(hdr.PrevHash[:]), hex.EncodeToString(hdr.MerkleRoot[:]),
		hdr.MinerAddress, hdr.Timestamp, hdr.Bits, hdr.Nonce, hdr.Version, len(items), boolToInt(isOwn), nullableString(sourcePeer), string(itemsJSON))
	if err != nil {
		return 0, errs.Wrapf(errs.ErrStoreUnavailable, "insert block: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.Wrapf(errs.ErrStoreUnavailable, "commit: %v", err)
	}
	return nextHeight, nil
}

func itemIDHexes(items []block.WorkItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.IDHex()
	}
	return out
}

// GetPoIBlockByHash returns a single block row, or sql.ErrNoRows when
// absent.
func (s *Store) GetPoIBlockByHash(hash string) (*PoIBlock, error) {
	row := s.db.QueryRow(`
		SELECT hash, height, prev_hash, merkle_root, miner_address, timestamp, bits, nonce, version, item_count, is_own, COALESCE(source_peer,''), COALESCE(mint_txid,'')
		FROM poi_blocks WHERE hash = ?`, hash)
	return scanPoIBlock(row)
}

// GetPoIBlockByHeight returns the block at the given height, or
// sql.ErrNoRows if absent.
func (s *Store) GetPoIBlockByHeight(height int64) (*PoIBlock, error) {
	row := s.db.QueryRow(`
		SELECT hash, height, prev_hash, merkle_root, miner_address, timestamp, bits, nonce, version, item_count, is_own, COALESCE(source_peer,''), COALESCE(mint_txid,'')
		FROM poi_blocks WHERE height = ?`, height)
	return scanPoIBlock(row)
}

// GetChainTip returns the highest-height block, or nil if the chain is
// empty.
func (s *Store) GetChainTip() (*PoIBlock, error) {
	row := s.db.QueryRow(`
		SELECT hash, height, prev_hash, merkle_root, miner_address, timestamp, bits, nonce, version, item_count, is_own, COALESCE(source_peer,''), COALESCE(mint_txid,'')
		FROM poi_blocks ORDER BY height DESC LIMIT 1`)
	b, err := scanPoIBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// GetRecentPoIBlocks returns up to limit blocks ordered newest first,
// skipping the first offset rows.
func (s *Store) GetRecentPoIBlocks(limit, offset int) ([]PoIBlock, error) {
	rows, err := s.db.Query(`
		SELECT hash, height, prev_hash, merkle_root, miner_address, timestamp, bits, nonce, version, item_count, is_own, COALESCE(source_peer,''), COALESCE(mint_txid,'')
		FROM poi_blocks ORDER BY height DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrStoreUnavailable, "query recent blocks: %v", err)
	}
	defer rows.Close()

	var out []PoIBlock
	for rows.Next() {
		b, err := scanPoIBlockRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// GetPoIBlockCount returns the total number of blocks, and GetOwnBlockCount
// the subset mined locally.
func (s *Store) GetPoIBlockCount() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM poi_blocks`).Scan(&n); err != nil {
		return 0, errs.Wrapf(errs.ErrStoreUnavailable, "count blocks: %v", err)
	}
	return n, nil
}

// GetOwnBlockCount returns the number of blocks mined locally.
func (s *Store) GetOwnBlockCount() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM poi_blocks WHERE is_own = 1`).Scan(&n); err != nil {
		return 0, errs.Wrapf(errs.ErrStoreUnavailable, "count own blocks: %v", err)
	}
	return n, nil
}

// GetBlockTimestampsSince returns the timestamps of the most recent n blocks,
// oldest first — used to seed the difficulty adjuster's sliding window at
// boot.
func (s *Store) GetBlockTimestampsSince(n int64) ([]time.Time, error) {
	rows, err := s.db.Query(`SELECT timestamp FROM poi_blocks ORDER BY height DESC LIMIT ?`, n)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrStoreUnavailable, "query timestamps: %v", err)
	}
	defer rows.Close()

	var ts []int64
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return nil, errs.Wrapf(errs.ErrStoreUnavailable, "scan timestamp: %v", err)
		}
		ts = append(ts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]time.Time, len(ts))
	for i, t := range ts {
		out[len(ts)-1-i] = time.UnixMilli(t)
	}
	return out, nil
}

// UpdateBlockMintTxid records the settlement transaction ID once the
// broadcaster confirms it, linking a mined block to its on-chain mint.
func (s *Store) UpdateBlockMintTxid(hash, txid string) error {
	_, err := s.db.Exec(`UPDATE poi_blocks SET mint_txid = ? WHERE hash = ?`, txid, hash)
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "update mint txid: %v", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPoIBlock(row *sql.Row) (*PoIBlock, error) {
	return scanPoIBlockGeneric(row)
}

func scanPoIBlockRows(rows *sql.Rows) (*PoIBlock, error) {
	return scanPoIBlockGeneric(rows)
}

func scanPoIBlockGeneric(rs rowScanner) (*PoIBlock, error) {
	var b PoIBlock
	var isOwn int
	err := rs.Scan(&b.Hash, &b.Height, &b.PrevHash, &b.MerkleRoot, &b.MinerAddress, &b.Timestamp,
		&b.Bits, &b.Nonce, &b.Version, &b.ItemCount, &isOwn, &b.SourcePeer, &b.MintTxid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errs.Wrapf(errs.ErrStoreUnavailable, "scan block: %v", err)
	}
	b.IsOwn = isOwn == 1
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
