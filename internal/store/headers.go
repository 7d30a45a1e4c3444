package store

import (
	"database/sql"
	"errors"

	"github.com/b0ase/clawminer/pkg/errs"
)

// Header is an SPV header row synced from the Block Headers Service.
type Header struct {
	Height     int64
	Hash       string
	Version    int32
	MerkleRoot string
	Timestamp  int64
	Bits       uint32
	Nonce      uint64
	PrevHash   string
}

// UpsertHeader inserts or replaces a header at a given height, idempotent
// across repeated sync passes.
func (s *Store) UpsertHeader(h Header) error {
	_, err := s.db.Exec(`
		INSERT INTO block_headers (height, hash, version, merkle_root, timestamp, bits, nonce, prev_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(height) DO UPDATE SET
			hash = excluded.hash,
			version = excluded.version,
			merkle_root = excluded.merkle_root,
			timestamp = excluded.timestamp,
			bits = excluded.bits,
			nonce = excluded.nonce,
			prev_hash = excluded.prev_hash`,
		h.Height, h.Hash, h.Version, h.MerkleRoot, h.Timestamp, h.Bits, h.Nonce, h.PrevHash)
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "upsert header: %v", err)
	}
	return nil
}

// UpsertHeaders writes a batch of headers inside a single transaction.
func (s *Store) UpsertHeaders(headers []Header) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "begin tx: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO block_headers (height, hash, version, merkle_root, timestamp, bits, nonce, prev_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(height) DO UPDATE SET
			hash = excluded.hash,
			version = excluded.version,
			merkle_root = excluded.merkle_root,
			timestamp = excluded.timestamp,
			bits = excluded.bits,
			nonce = excluded.nonce,
			prev_hash = excluded.prev_hash`)
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "prepare: %v", err)
	}
	defer stmt.Close()

	for _, h := range headers {
		if _, err := stmt.Exec(h.Height, h.Hash, h.Version, h.MerkleRoot, h.Timestamp, h.Bits, h.Nonce, h.PrevHash); err != nil {
			return errs.Wrapf(errs.ErrStoreUnavailable, "upsert header batch: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "commit: %v", err)
	}
	return nil
}

// HighestHeaderHeight returns the tallest synced header height, or -1 if
// none have been synced yet.
func (s *Store) HighestHeaderHeight() (int64, error) {
	var h sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(height) FROM block_headers`).Scan(&h); err != nil {
		return -1, errs.Wrapf(errs.ErrStoreUnavailable, "query max height: %v", err)
	}
	if !h.Valid {
		return -1, nil
	}
	return h.Int64, nil
}

// GetHeaderByHeight fetches a single header row.
func (s *Store) GetHeaderByHeight(height int64) (*Header, error) {
	var h Header
	err := s.db.QueryRow(`
		SELECT height, hash, version, merkle_root, timestamp, bits, nonce, prev_hash
		FROM block_headers WHERE height = ?`, height).
		Scan(&h.Height, &h.Hash, &h.Version, &h.MerkleRoot, &h.Timestamp, &h.Bits, &h.Nonce, &h.PrevHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errs.Wrapf(errs.ErrStoreUnavailable, "get header: %v", err)
	}
	return &h, nil
}

// HasMerkleRoot reports whether the synced header at exactly the given
// height carries the given merkle root, used to validate an SPV proof
// against the header chain the daemon has observed.
func (s *Store) HasMerkleRoot(root string, height int64) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM block_headers WHERE merkle_root = ? AND height = ?`, root, height).Scan(&count)
	if err != nil {
		return false, errs.Wrapf(errs.ErrStoreUnavailable, "check merkle root: %v", err)
	}
	return count > 0, nil
}
