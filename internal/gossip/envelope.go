package gossip

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/libp2p/go-libp2p/core/crypto"

	"github.com/b0ase/clawminer/pkg/errs"
)

// Message type identifiers carried in an Envelope's Type field.
const (
	TypeWorkItemOffer = "WORK_ITEM_OFFER"
	TypeBlockAnnounce = "BLOCK_ANNOUNCE"
)

// Envelope is the signed wire format every gossip message travels in.
// Ed25519 signatures have no DER form, so Signature carries the raw 64-byte
// signature hex-encoded rather than a DER structure.
type Envelope struct {
	SenderID  string          `json:"sender_id"`
	Type      string          `json:"type"`
	Nonce     uint64          `json:"nonce"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingDigest hashes type||payload||nonce the same way on sign and
// verify, so both sides agree byte-for-byte.
func signingDigest(msgType string, payload json.RawMessage, nonce uint64) [32]byte {
	h := sha256.New()
	h.Write([]byte(msgType))
	h.Write(payload)
	var nb [8]byte
	for i := 0; i < 8; i++ {
		nb[i] = byte(nonce >> (8 * (7 - i)))
	}
	h.Write(nb[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SignEnvelope builds and signs an Envelope for the given type/payload using
// the node's persisted identity key.
func SignEnvelope(priv crypto.PrivKey, senderID, msgType string, payload interface{}, nonce uint64) (*Envelope, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrValidationReject, "marshal payload: %v", err)
	}
	digest := signingDigest(msgType, payloadJSON, nonce)
	sig, err := priv.Sign(digest[:])
	if err != nil {
		return nil, errs.Wrapf(errs.ErrKeyInvalid, "sign envelope: %v", err)
	}
	return &Envelope{
		SenderID:  senderID,
		Type:      msgType,
		Nonce:     nonce,
		Payload:   payloadJSON,
		Signature: hex.EncodeToString(sig),
	}, nil
}

// Verify checks an Envelope's signature against the sender's claimed public
// key. Returns errs.ErrValidationReject on any mismatch.
func (e *Envelope) Verify(pub crypto.PubKey) error {
	sig, err := hex.DecodeString(e.Signature)
	if err != nil {
		return errs.Wrapf(errs.ErrValidationReject, "decode signature: %v", err)
	}
	digest := signingDigest(e.Type, e.Payload, e.Nonce)
	ok, err := pub.Verify(digest[:], sig)
	if err != nil {
		return errs.Wrapf(errs.ErrValidationReject, "verify signature: %v", err)
	}
	if !ok {
		return errs.Wrapf(errs.ErrValidationReject, "signature mismatch")
	}
	return nil
}

// BlockAnnouncePayload is the BLOCK_ANNOUNCE message body.
type BlockAnnouncePayload struct {
	Hash         string `json:"hash"`
	Height       int64  `json:"height"`
	MinerAddress string `json:"miner_address"`
	Timestamp    int64  `json:"timestamp"`
	Bits         uint32 `json:"bits"`
	TargetHex    string `json:"target_hex"`
	MerkleRoot   string `json:"merkle_root"`
	PrevHash     string `json:"prev_hash"`
	Nonce        uint64 `json:"nonce"`
	Version      int32  `json:"version"`
	ItemCount    int    `json:"item_count"`
}

// WorkItemOfferPayload is the WORK_ITEM_OFFER message body.
type WorkItemOfferPayload struct {
	Type      uint8  `json:"item_type"`
	Data      string `json:"data_hex"`
	Timestamp int64  `json:"timestamp"`
}
