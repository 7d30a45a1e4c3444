package mining

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/b0ase/clawminer/pkg/errs"
)

// SettlementRequest carries everything a broadcaster needs to mint a
// mined block's reward on the external chain.
type SettlementRequest struct {
	MinerAddress   string
	Amount         int64
	Nonce          uint64
	WorkCommitment string
	BlockHash      string
}

// Broadcaster turns a mined block into an on-chain settlement transaction.
type Broadcaster interface {
	Broadcast(ctx context.Context, req SettlementRequest) (txid string, err error)
}

// NoopBroadcaster never settles; Broadcast returns a random "noop-"
// prefixed placeholder txid without making any external call. Used when mining runs
// without a configured settlement path.
type NoopBroadcaster struct{}

// Broadcast returns a locally-generated placeholder id; no external I/O.
func (NoopBroadcaster) Broadcast(_ context.Context, _ SettlementRequest) (string, error) {
	return "noop-" + uuid.NewString(), nil
}

// NativeBroadcaster signs and submits the settlement transaction directly
// against an in-process chain client. ClawMiner has no embedded UTXO chain
// client of its own — this type exists to satisfy the Broadcaster interface
// for an in-process implementation supplied by the host application. The
// daemon never constructs one: its native mode falls back to
// NoopBroadcaster.
type NativeBroadcaster struct {
	Submit func(ctx context.Context, req SettlementRequest) (string, error)
}

// Broadcast delegates to the injected Submit function.
func (b NativeBroadcaster) Broadcast(ctx context.Context, req SettlementRequest) (string, error) {
	if b.Submit == nil {
		return "", errs.Wrapf(errs.ErrUnavailable, "native broadcaster has no submit function configured")
	}
	return b.Submit(ctx, req)
}

// HTTPServiceBroadcaster posts the settlement request to an external
// broadcaster service and reads back a JSON {txid} response.
type HTTPServiceBroadcaster struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPServiceBroadcaster creates a broadcaster bound to baseURL with a
// sane request timeout.
func NewHTTPServiceBroadcaster(baseURL, apiKey string) *HTTPServiceBroadcaster {
	return &HTTPServiceBroadcaster{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type httpSettlementResponse struct {
	Txid string `json:"txid"`
}

// Broadcast posts req as JSON and returns the settlement txid.
func (b *HTTPServiceBroadcaster) Broadcast(ctx context.Context, req SettlementRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", errs.Wrapf(errs.ErrValidationReject, "marshal settlement request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/broadcast", bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrapf(errs.ErrNetworkTransient, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.APIKey)
	}

	resp, err := b.Client.Do(httpReq)
	if err != nil {
		return "", errs.Wrapf(errs.ErrNetworkTransient, "broadcast request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errs.Wrapf(errs.ErrNetworkTransient, "broadcaster returned status %d", resp.StatusCode)
	}

	var out httpSettlementResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errs.Wrapf(errs.ErrNetworkTransient, "decode broadcaster response: %v", err)
	}
	if out.Txid == "" {
		return "", errs.Wrapf(errs.ErrNetworkTransient, "broadcaster returned empty txid")
	}
	return out.Txid, nil
}
