package gossip

import (
	"crypto/rand"
	"testing"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/stretchr/testify/require"
)

func TestSignEnvelopeVerifiesWithMatchingKey(t *testing.T) {
	priv, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)

	payload := BlockAnnouncePayload{Hash: "aa", Height: 1}
	env, err := SignEnvelope(priv, "sender1", TypeBlockAnnounce, payload, 7)
	require.NoError(t, err)

	require.NoError(t, env.Verify(pub))
}

func TestEnvelopeVerifyRejectsTamperedPayload(t *testing.T) {
	priv, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)

	env, err := SignEnvelope(priv, "sender1", TypeWorkItemOffer, WorkItemOfferPayload{Data: "aa"}, 1)
	require.NoError(t, err)

	env.Payload = []byte(`{"item_type":0,"data_hex":"bb","timestamp":0}`)
	require.Error(t, env.Verify(pub))
}

func TestEnvelopeVerifyRejectsWrongKey(t *testing.T) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	_, otherPub, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)

	env, err := SignEnvelope(priv, "sender1", TypeBlockAnnounce, BlockAnnouncePayload{}, 1)
	require.NoError(t, err)

	require.Error(t, env.Verify(otherPub))
}
