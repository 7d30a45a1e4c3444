package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/b0ase/clawminer/internal/daemon"
	"github.com/b0ase/clawminer/internal/store"
	"github.com/b0ase/clawminer/pkg/config"
)

func newTestServer(t *testing.T) (*Server, *daemon.Daemon) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "clawminer.db"), filepath.Join(dir, "content"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{}
	cfg.DataDirPath = dir

	d, err := daemon.NewWithStore(cfg, st)
	require.NoError(t, err)

	return New("127.0.0.1", 0, d), d
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestStatusEndpointReportsWallet(t *testing.T) {
	s, d := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, d.NodeID(), body["node_id"])
	require.Equal(t, d.WalletStatus().Address, body["wallet"].(map[string]interface{})["address"])
}

func TestBlocksCountEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/blocks/count", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, int64(0), body["total"])
	require.Equal(t, int64(0), body["own"])
}

func TestBlockByHashNotFoundReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/blocks/deadbeef", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestWalletImportRejectsMalformedWIF(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/wallet/import", jsonBody(t, map[string]string{"wif": "not-a-wif"}))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletGenerateThenExportRoundTrips(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/wallet/generate", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var genBody map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &genBody))
	require.NotEmpty(t, genBody["address"])

	req2 := httptest.NewRequest(http.MethodGet, "/api/wallet/export", nil)
	w2 := httptest.NewRecorder()
	s.router.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)

	var exportBody map[string]string
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &exportBody))
	require.NotEmpty(t, exportBody["wif"])
}

func TestMiningStartStopRespondOKOnUnstartedDaemon(t *testing.T) {
	s, d := newTestServer(t)
	_ = d

	reqStart := httptest.NewRequest(http.MethodPost, "/api/mining/start", nil)
	wStart := httptest.NewRecorder()
	s.router.ServeHTTP(wStart, reqStart)
	require.Equal(t, http.StatusOK, wStart.Code)

	reqStop := httptest.NewRequest(http.MethodPost, "/api/mining/stop", nil)
	wStop := httptest.NewRecorder()
	s.router.ServeHTTP(wStop, reqStop)
	require.Equal(t, http.StatusOK, wStop.Code)
}

func TestEventsStreamSendsStatusSnapshotThenBusEvents(t *testing.T) {
	s, d := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.router.ServeHTTP(w, req)
		close(done)
	}()

	// Give handleEvents time to subscribe and emit its initial snapshot
	// before a bus event is published, matching how a real client would
	// connect ahead of any activity.
	require.Eventually(t, func() bool { return d.Events().SubscriberCount() > 0 }, 200*time.Millisecond, 5*time.Millisecond)
	d.Events().Publish(daemon.Event{Type: "test-event", Timestamp: time.Now()})

	<-done

	body := w.Body.String()
	require.Contains(t, body, "event: status-snapshot")
	require.Contains(t, body, "event: test-event")
}

func TestExplorerBlocksListReturnsEmptyArray(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/explorer/blocks", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var blocks []interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &blocks))
	require.Empty(t, blocks)
}

func TestExplorerBlockByHeightNotFoundReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/explorer/blocks/7", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}
