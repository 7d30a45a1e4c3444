// Package store is ClawMiner's embedded transactional store: one
// process-wide *sql.DB handle (modernc.org/sqlite, WAL journal, foreign
// keys enforced), opened once at startup and closed at shutdown. Every
// write API here is transactional at the call boundary — callers never see
// a multi-call transaction.
//
// The Store holds a go.uber.org/zap logger rather than a logrus one, the
// one subsystem in this codebase that reaches for zap instead of the
// daemon-wide structured logger. Its methods log nothing; errors are
// returned to the caller.
package store

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
	"go.uber.org/zap"

	"github.com/b0ase/clawminer/pkg/errs"
)

// Store wraps the single shared database handle plus the content-addressed
// blob directory.
type Store struct {
	db         *sql.DB
	contentDir string
	logger     *zap.SugaredLogger
}

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS peers (
	peer_id            TEXT PRIMARY KEY,
	last_seen_addr      TEXT NOT NULL DEFAULT '',
	reputation          INTEGER NOT NULL DEFAULT 50,
	valid_count         INTEGER NOT NULL DEFAULT 0,
	invalid_count       INTEGER NOT NULL DEFAULT 0,
	connection_failures INTEGER NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'active',
	discovery_source    TEXT NOT NULL DEFAULT '',
	updated_at          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS poi_blocks (
	hash          TEXT PRIMARY KEY,
	height        INTEGER NOT NULL,
	prev_hash     TEXT NOT NULL,
	merkle_root   TEXT NOT NULL,
	miner_address TEXT NOT NULL,
	timestamp     INTEGER NOT NULL,
	bits          INTEGER NOT NULL,
	nonce         INTEGER NOT NULL,
	version       INTEGER NOT NULL,
	item_count    INTEGER NOT NULL,
	is_own        INTEGER NOT NULL,
	source_peer   TEXT REFERENCES peers(peer_id),
	target_hex    TEXT,
	items_json    TEXT,
	mint_txid     TEXT
);
CREATE INDEX IF NOT EXISTS idx_poi_blocks_height ON poi_blocks(height);
CREATE INDEX IF NOT EXISTS idx_poi_blocks_is_own ON poi_blocks(is_own);

CREATE TABLE IF NOT EXISTS block_headers (
	height      INTEGER PRIMARY KEY,
	hash        TEXT NOT NULL,
	version     INTEGER NOT NULL,
	merkle_root TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	bits        INTEGER NOT NULL,
	nonce       INTEGER NOT NULL,
	prev_hash   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_block_headers_root_height ON block_headers(merkle_root, height);

CREATE TABLE IF NOT EXISTS gossip_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	peer_id    TEXT NOT NULL REFERENCES peers(peer_id),
	msg_type   TEXT NOT NULL,
	accepted   INTEGER NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS content_metadata (
	hash       TEXT PRIMARY KEY,
	size_bytes INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS serve_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	hash       TEXT NOT NULL REFERENCES content_metadata(hash),
	served_at  INTEGER NOT NULL,
	peer_id    TEXT
);

CREATE TABLE IF NOT EXISTS identity_tokens (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tokens (
	token_id  TEXT PRIMARY KEY,
	symbol    TEXT NOT NULL,
	decimals  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS holdings (
	address  TEXT NOT NULL,
	token_id TEXT NOT NULL REFERENCES tokens(token_id),
	amount   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (address, token_id)
);

CREATE TABLE IF NOT EXISTS transfers (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	token_id   TEXT NOT NULL REFERENCES tokens(token_id),
	from_addr  TEXT NOT NULL,
	to_addr    TEXT NOT NULL,
	amount     INTEGER NOT NULL,
	txid       TEXT,
	created_at INTEGER NOT NULL
);
`

// Open opens (creating if needed) the sqlite database at dbPath, applies the
// schema, and ensures the content blob directory exists. Open failure is
// fatal at startup.
func Open(dbPath, contentDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errs.Wrapf(errs.ErrStoreUnavailable, "create data dir: %v", err)
	}
	if err := os.MkdirAll(contentDir, 0o755); err != nil {
		return nil, errs.Wrapf(errs.ErrStoreUnavailable, "create content dir: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrStoreUnavailable, "open db: %v", err)
	}
	// Single writer discipline: sqlite handles concurrent readers fine, but
	// we serialize writers at the driver level rather than fan them out
	// across pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Wrapf(errs.ErrStoreUnavailable, "apply schema: %v", err)
	}

	logger, _ := zap.NewProduction()
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{db: db, contentDir: contentDir, logger: logger.Sugar()}, nil
}

// Close releases the database handle. Idempotent.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
