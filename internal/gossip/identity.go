// Package gossip runs the libp2p host, pubsub mesh, and peer-discovery
// machinery ClawMiner uses to trade work-item offers and block
// announcements with other nodes.
//
// The host wiring (NewGossipSub, mDNS notifee, bootstrap dialing) is
// grounded on network.go's NewNode/DialSeed/HandlePeerFound, generalized
// from a single hardcoded topic to the daemon's configured topic plus a
// signed-envelope wire format and persisted peer reputation.
package gossip

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/libp2p/go-libp2p/core/crypto"

	"github.com/b0ase/clawminer/pkg/errs"
)

// configKeyLibp2pIdentity is the well-known config KV key the node's
// libp2p Ed25519 private key is persisted under, hex-encoded.
const configKeyLibp2pIdentity = "libp2p_identity_key"

// ConfigStore is the subset of the persisted store LoadOrCreateIdentity
// needs: the schema-less config key-value table that also holds the
// wallet WIF and difficulty target.
type ConfigStore interface {
	GetConfigValue(key string) (string, bool, error)
	SetConfigValue(key, value string) error
}

// LoadOrCreateIdentity reads the node's persisted Ed25519 private key from
// the config KV under configKeyLibp2pIdentity, generating and saving a
// fresh one on first boot so the node's peer ID is stable across restarts.
func LoadOrCreateIdentity(st ConfigStore) (crypto.PrivKey, error) {
	raw, ok, err := st.GetConfigValue(configKeyLibp2pIdentity)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrStoreUnavailable, "read identity key: %v", err)
	}
	if ok && raw != "" {
		decoded, hexErr := hex.DecodeString(raw)
		if hexErr != nil {
			return nil, errs.Wrapf(errs.ErrKeyInvalid, "decode persisted identity: %v", hexErr)
		}
		priv, unmarshalErr := crypto.UnmarshalPrivateKey(decoded)
		if unmarshalErr != nil {
			return nil, errs.Wrapf(errs.ErrKeyInvalid, "unmarshal persisted identity: %v", unmarshalErr)
		}
		return priv, nil
	}

	priv, _, genErr := crypto.GenerateEd25519Key(rand.Reader)
	if genErr != nil {
		return nil, errs.Wrapf(errs.ErrKeyInvalid, "generate identity key: %v", genErr)
	}
	marshaled, marshalErr := crypto.MarshalPrivateKey(priv)
	if marshalErr != nil {
		return nil, errs.Wrapf(errs.ErrKeyInvalid, "marshal identity key: %v", marshalErr)
	}
	if err := st.SetConfigValue(configKeyLibp2pIdentity, hex.EncodeToString(marshaled)); err != nil {
		return nil, errs.Wrapf(errs.ErrStoreUnavailable, "persist identity key: %v", err)
	}
	return priv, nil
}
