// Package block defines the PoI block header/body model: the deterministic
// canonical byte encoding double-SHA256'd into a block hash, and the
// merkle-root rule over the work items carried in the body.
package block

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// ItemType enumerates the kinds of work a WorkItem can attest to.
type ItemType uint8

const (
	TxIndexed ItemType = iota
	ContentServed
	StampValidated
	PeerRelayed
	MarketIndexed
)

func (t ItemType) String() string {
	switch t {
	case TxIndexed:
		return "tx-indexed"
	case ContentServed:
		return "content-served"
	case StampValidated:
		return "stamp-validated"
	case PeerRelayed:
		return "peer-relayed"
	case MarketIndexed:
		return "market-indexed"
	default:
		return "unknown"
	}
}

// WorkItem is a single gossiped proof of indexing/serving/relay work. Its ID
// is the content hash of type|data|timestamp and is the mempool dedup key.
type WorkItem struct {
	ID        [32]byte
	Type      ItemType
	Data      []byte
	Timestamp int64
}

// NewWorkItem computes the ID and returns a populated WorkItem.
func NewWorkItem(t ItemType, data []byte, timestampMS int64) WorkItem {
	h := sha256.New()
	h.Write([]byte{byte(t)})
	h.Write(data)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestampMS))
	h.Write(tsBuf[:])

	var id [32]byte
	copy(id[:], h.Sum(nil))
	return WorkItem{ID: id, Type: t, Data: data, Timestamp: timestampMS}
}

// IDHex returns the hex-encoded item ID.
func (w WorkItem) IDHex() string { return hex.EncodeToString(w.ID[:]) }

// Header is the PoI block header. Height is NOT part of the header; it is
// assigned by storage.
type Header struct {
	Version      int32
	PrevHash     [32]byte
	MerkleRoot   [32]byte
	Timestamp    int64
	Bits         uint32
	Nonce        uint64
	MinerAddress string
}

// CanonicalBytes returns the deterministic byte encoding hashed to produce
// the block hash. Field order and widths are fixed so peers independently
// recompute the identical hash.
func (h Header) CanonicalBytes() []byte {
	addr := []byte(h.MinerAddress)
	buf := make([]byte, 0, 4+32+32+8+4+8+2+len(addr))

	var b4 [4]byte
	binary.BigEndian.PutUint32(b4[:], uint32(h.Version))
	buf = append(buf, b4[:]...)

	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)

	var b8 [8]byte
	binary.BigEndian.PutUint64(b8[:], uint64(h.Timestamp))
	buf = append(buf, b8[:]...)

	binary.BigEndian.PutUint32(b4[:], h.Bits)
	buf = append(buf, b4[:]...)

	binary.BigEndian.PutUint64(b8[:], h.Nonce)
	buf = append(buf, b8[:]...)

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(addr)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, addr...)

	return buf
}

// Block is a header paired with its ordered body of work items.
type Block struct {
	Header Header
	Items  []WorkItem
}

// MerkleRoot computes the merkle root over already-sorted item IDs,
// duplicating the last leaf at every level with an odd count — the same
// rule the source miner uses, so all implementations agree bit-for-bit.
func MerkleRoot(ids [][32]byte) [32]byte {
	if len(ids) == 0 {
		return [32]byte{}
	}
	level := make([][32]byte, len(ids))
	copy(level, ids)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, len(level)/2)
		for i := 0; i < len(next); i++ {
			var buf [64]byte
			copy(buf[:32], level[2*i][:])
			copy(buf[32:], level[2*i+1][:])
			next[i] = sha256.Sum256(buf[:])
		}
		level = next
	}
	return level[0]
}

// SortItemIDs returns a copy of ids sorted ascending by byte value, the
// canonical leaf order for MerkleRoot.
func SortItemIDs(ids [][32]byte) [][32]byte {
	out := make([][32]byte, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool {
		for k := 0; k < 32; k++ {
			if out[i][k] != out[j][k] {
				return out[i][k] < out[j][k]
			}
		}
		return false
	})
	return out
}

// MerkleRootForItems sorts the items by ID and returns their merkle root.
func MerkleRootForItems(items []WorkItem) [32]byte {
	ids := make([][32]byte, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return MerkleRoot(SortItemIDs(ids))
}
