package gossip

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"

	"github.com/b0ase/clawminer/pkg/errs"
)

// ReputationStore is the subset of the persisted store the gossip layer
// needs: recording peer sightings and adjusting reputation on valid or
// invalid messages.
type ReputationStore interface {
	UpsertPeerSeen(peerID, addr, discoverySource string) error
	AdjustPeerReputation(peerID string, delta int, wasValid bool) error
	RecordConnectionFailure(peerID string) error
	LogGossipMessage(peerID, msgType string, accepted bool, reason string) error
}

// HandlerFunc is invoked for every signature-valid inbound envelope.
type HandlerFunc func(senderID string, env *Envelope)

// Config configures the gossip node's transport and discovery behavior.
type Config struct {
	ListenPort      int
	Topic           string
	BootstrapPeers  []string
	EnableDHT       bool
	EnableMDNS      bool
	DiscoveryTag    string
	MaxPeers        int
}

// Node wraps a libp2p host, a single pubsub topic, and the bookkeeping the
// daemon needs to treat gossip as one managed subsystem.
type Node struct {
	host   host.Host
	priv   crypto.PrivKey
	pubsub *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	dht    *dht.IpfsDHT

	cfg   Config
	store ReputationStore

	ctx    context.Context
	cancel context.CancelFunc

	handlerMu sync.RWMutex
	handler   HandlerFunc

	peerKeysMu sync.RWMutex
	peerKeys   map[string]crypto.PubKey

	nonceMu sync.Mutex
	nonce   uint64
}

// NewNode creates a libp2p host bound to cfg.ListenPort, joins cfg.Topic,
// and starts bootstrap dialing plus optional DHT/mDNS discovery. Mirrors
// NewNode/DialSeed/HandlePeerFound's boot sequence, generalized to a
// configurable topic and signed envelopes.
func NewNode(cfg Config, priv crypto.PrivKey, repStore ReputationStore) (*Node, error) {
	ctx, cancel := context.WithCancel(context.Background())

	listenAddr := fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.ListenPort)
	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr), libp2p.Identity(priv))
	if err != nil {
		cancel()
		return nil, errs.Wrapf(errs.ErrNetworkTransient, "create libp2p host: %v", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, errs.Wrapf(errs.ErrNetworkTransient, "create pubsub: %v", err)
	}

	topic, err := ps.Join(cfg.Topic)
	if err != nil {
		h.Close()
		cancel()
		return nil, errs.Wrapf(errs.ErrNetworkTransient, "join topic: %v", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		h.Close()
		cancel()
		return nil, errs.Wrapf(errs.ErrNetworkTransient, "subscribe topic: %v", err)
	}

	n := &Node{
		host:     h,
		priv:     priv,
		pubsub:   ps,
		topic:    topic,
		sub:      sub,
		cfg:      cfg,
		store:    repStore,
		ctx:      ctx,
		cancel:   cancel,
		peerKeys: make(map[string]crypto.PubKey),
	}

	if cfg.EnableDHT {
		kad, err := dht.New(ctx, h, dht.Mode(dht.ModeAuto))
		if err != nil {
			logrus.Warnf("gossip: DHT init failed: %v", err)
		} else {
			n.dht = kad
			if err := kad.Bootstrap(ctx); err != nil {
				logrus.Warnf("gossip: DHT bootstrap failed: %v", err)
			}
		}
	}

	if cfg.EnableMDNS {
		mdns.NewMdnsService(h, cfg.DiscoveryTag, n)
	}

	go n.dialBootstrap(cfg.BootstrapPeers)
	go n.readLoop()

	return n, nil
}

var _ mdns.Notifee = (*Node)(nil)

// HandlePeerFound implements mdns.Notifee: connect to a LAN-discovered
// peer, skipping self-connections.
func (n *Node) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(n.ctx, info); err != nil {
		logrus.Warnf("gossip: mDNS connect to %s failed: %v", info.ID, err)
		if n.store != nil {
			_ = n.store.RecordConnectionFailure(info.ID.String())
		}
		return
	}
	if n.store != nil {
		_ = n.store.UpsertPeerSeen(info.ID.String(), info.String(), "mdns")
	}
	logrus.Infof("gossip: connected to %s via mDNS", truncatePeerID(info.ID.String()))
}

// dialBootstrap connects to each configured bootstrap peer with exponential
// backoff on failure, per-peer, without blocking other peers' attempts.
func (n *Node) dialBootstrap(seeds []string) {
	var wg sync.WaitGroup
	for _, addr := range seeds {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.dialWithBackoff(addr)
		}()
	}
	wg.Wait()
}

func (n *Node) dialWithBackoff(addr string) {
	pi, err := peer.AddrInfoFromString(addr)
	if err != nil {
		logrus.Warnf("gossip: invalid bootstrap addr %s: %v", addr, err)
		return
	}

	backoff := time.Second
	const maxBackoff = 2 * time.Minute
	for attempt := 0; attempt < 8; attempt++ {
		select {
		case <-n.ctx.Done():
			return
		default:
		}
		if err := n.host.Connect(n.ctx, *pi); err == nil {
			if n.store != nil {
				_ = n.store.UpsertPeerSeen(pi.ID.String(), addr, "bootstrap")
			}
			logrus.Infof("gossip: bootstrapped to %s", truncatePeerID(pi.ID.String()))
			return
		}
		if n.store != nil {
			_ = n.store.RecordConnectionFailure(pi.ID.String())
		}
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	logrus.Warnf("gossip: exhausted bootstrap retries for %s", addr)
}

// SetHandler registers fn to be invoked for every signature-valid inbound
// message. Only one handler is supported; the daemon does its own type
// dispatch inside fn.
func (n *Node) SetHandler(fn HandlerFunc) {
	n.handlerMu.Lock()
	n.handler = fn
	n.handlerMu.Unlock()
}

func (n *Node) readLoop() {
	for {
		msg, err := n.sub.Next(n.ctx)
		if err != nil {
			if n.ctx.Err() != nil {
				return
			}
			logrus.Warnf("gossip: subscription read error: %v", err)
			continue
		}
		if msg.GetFrom() == n.host.ID() {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			logrus.Warnf("gossip: malformed envelope from %s: %v", msg.GetFrom(), err)
			n.penalize(msg.GetFrom().String(), "WORK_ITEM_OFFER", "unmarshal failure")
			continue
		}

		pub, err := n.resolveSenderKey(env.SenderID)
		if err != nil {
			logrus.Warnf("gossip: cannot resolve sender key %s: %v", env.SenderID, err)
			n.penalize(env.SenderID, env.Type, "unresolvable sender key")
			continue
		}
		if err := env.Verify(pub); err != nil {
			logrus.Warnf("gossip: signature rejected from %s: %v", env.SenderID, err)
			n.penalize(env.SenderID, env.Type, "bad signature")
			continue
		}

		if n.store != nil {
			_ = n.store.LogGossipMessage(env.SenderID, env.Type, true, "")
		}

		n.handlerMu.RLock()
		h := n.handler
		n.handlerMu.RUnlock()
		if h != nil {
			h(env.SenderID, &env)
		}
	}
}

func (n *Node) penalize(peerID, msgType, reason string) {
	if n.store != nil {
		_ = n.store.LogGossipMessage(peerID, msgType, false, reason)
		_ = n.store.AdjustPeerReputation(peerID, -1, false)
	}
}

func (n *Node) resolveSenderKey(senderID string) (crypto.PubKey, error) {
	n.peerKeysMu.RLock()
	if pub, ok := n.peerKeys[senderID]; ok {
		n.peerKeysMu.RUnlock()
		return pub, nil
	}
	n.peerKeysMu.RUnlock()

	pid, err := peer.Decode(senderID)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrValidationReject, "decode peer id: %v", err)
	}
	pub, err := pid.ExtractPublicKey()
	if err != nil {
		return nil, errs.Wrapf(errs.ErrValidationReject, "extract public key: %v", err)
	}
	n.peerKeysMu.Lock()
	n.peerKeys[senderID] = pub
	n.peerKeysMu.Unlock()
	return pub, nil
}

// Publish signs payload as msgType and broadcasts it on the shared topic.
func (n *Node) Publish(msgType string, payload interface{}) error {
	env, err := SignEnvelope(n.priv, n.host.ID().String(), msgType, payload, n.nextNonce())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return errs.Wrapf(errs.ErrValidationReject, "marshal envelope: %v", err)
	}
	if err := n.topic.Publish(n.ctx, data); err != nil {
		return errs.Wrapf(errs.ErrNetworkTransient, "publish: %v", err)
	}
	return nil
}

func (n *Node) nextNonce() uint64 {
	n.nonceMu.Lock()
	defer n.nonceMu.Unlock()
	n.nonce++
	return n.nonce
}

// PeerID returns the node's own libp2p peer ID string.
func (n *Node) PeerID() string { return n.host.ID().String() }

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int { return len(n.host.Network().Peers()) }

// Close tears down the pubsub subscription, topic, DHT, and host.
func (n *Node) Close() error {
	n.cancel()
	n.sub.Cancel()
	if err := n.topic.Close(); err != nil {
		logrus.Warnf("gossip: topic close: %v", err)
	}
	if n.dht != nil {
		_ = n.dht.Close()
	}
	return n.host.Close()
}

func truncatePeerID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + ".." + id[len(id)-6:]
}
