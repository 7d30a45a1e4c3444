package store

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/b0ase/clawminer/pkg/errs"
)

// PutContent writes data to the content-addressed blob store, keyed by its
// SHA256 hash, and records its metadata row. Writing the same bytes twice is
// a no-op beyond the metadata upsert.
func (s *Store) PutContent(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hashHex := hex.EncodeToString(sum[:])

	path := s.contentPath(hashHex)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", errs.Wrapf(errs.ErrStoreUnavailable, "mkdir content shard: %v", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", errs.Wrapf(errs.ErrStoreUnavailable, "write content blob: %v", err)
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO content_metadata (hash, size_bytes, created_at) VALUES (?, ?, ?)
		ON CONFLICT(hash) DO NOTHING`, hashHex, len(data), time.Now().UnixMilli())
	if err != nil {
		return "", errs.Wrapf(errs.ErrStoreUnavailable, "insert content metadata: %v", err)
	}
	return hashHex, nil
}

// GetContent reads a blob back by its content hash.
func (s *Store) GetContent(hashHex string) ([]byte, error) {
	data, err := os.ReadFile(s.contentPath(hashHex))
	if err != nil {
		return nil, errs.Wrapf(errs.ErrStoreUnavailable, "read content blob: %v", err)
	}
	return data, nil
}

// LogServe records that a piece of content was served to a peer, feeding
// the ContentServed work-item type.
func (s *Store) LogServe(hashHex, peerID string) error {
	_, err := s.db.Exec(`
		INSERT INTO serve_logs (hash, served_at, peer_id) VALUES (?, ?, ?)`,
		hashHex, time.Now().UnixMilli(), nullableString(peerID))
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "log serve: %v", err)
	}
	return nil
}

func (s *Store) contentPath(hashHex string) string {
	if len(hashHex) < 2 {
		return filepath.Join(s.contentDir, hashHex)
	}
	return filepath.Join(s.contentDir, hashHex[:2], hashHex)
}
