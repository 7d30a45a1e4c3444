package mining

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopBroadcasterReturnsPlaceholderTxid(t *testing.T) {
	b := NoopBroadcaster{}
	txid, err := b.Broadcast(context.Background(), SettlementRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, txid)
}

func TestHTTPServiceBroadcasterPostsAndParsesTxid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/broadcast", r.URL.Path)
		var req SettlementRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "addr1", req.MinerAddress)
		json.NewEncoder(w).Encode(map[string]string{"txid": "tx123"})
	}))
	defer srv.Close()

	b := NewHTTPServiceBroadcaster(srv.URL, "")
	txid, err := b.Broadcast(context.Background(), SettlementRequest{MinerAddress: "addr1"})
	require.NoError(t, err)
	require.Equal(t, "tx123", txid)
}

func TestNativeBroadcasterRequiresSubmitFunc(t *testing.T) {
	b := NativeBroadcaster{}
	_, err := b.Broadcast(context.Background(), SettlementRequest{})
	require.Error(t, err)
}
