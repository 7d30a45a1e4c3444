package headers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/b0ase/clawminer/internal/store"
)

type fakeStore struct {
	mu      sync.Mutex
	headers map[int64]store.Header
}

func newFakeStore() *fakeStore { return &fakeStore{headers: make(map[int64]store.Header)} }

func (f *fakeStore) HighestHeaderHeight() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := int64(-1)
	for h := range f.headers {
		if h > max {
			max = h
		}
	}
	return max, nil
}

func (f *fakeStore) UpsertHeaders(hs []store.Header) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range hs {
		f.headers[h.Height] = h
	}
	return nil
}

func (f *fakeStore) HasMerkleRoot(root string, height int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h, hdr := range f.headers {
		if hdr.MerkleRoot == root && h == height {
			return true, nil
		}
	}
	return false, nil
}

func TestSyncOnceFetchesMissingHeightsAndStores(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chain/tip", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int64{"height": 2})
	})
	mux.HandleFunc("/api/v1/chain/header/byHeight/0", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"height": 0, "hash": "h0", "merkleRoot": "m0"})
	})
	mux.HandleFunc("/api/v1/chain/header/byHeight/1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"height": 1, "hash": "h1", "merkleRoot": "m1"})
	})
	mux.HandleFunc("/api/v1/chain/header/byHeight/2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"height": 2, "hash": "h2", "merkleRoot": "m2"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	st := newFakeStore()
	svc := New(Config{BaseURL: srv.URL, BatchSize: 10, MaxRetries: 2}, st)
	svc.ctx, svc.cancel = context.WithCancel(context.Background())
	defer svc.cancel()

	require.NoError(t, svc.syncOnce())

	top, err := st.HighestHeaderHeight()
	require.NoError(t, err)
	require.Equal(t, int64(2), top)

	found, err := svc.ValidateMerkleRoot("m1", 1)
	require.NoError(t, err)
	require.True(t, found)
}

func TestProgressReflectsSyncing(t *testing.T) {
	svc := New(Config{}, newFakeStore())
	svc.setSyncing(true)
	require.True(t, svc.Progress().IsSyncing)
	svc.setSyncing(false)
	require.False(t, svc.Progress().IsSyncing)
}

func TestStartIsNoopWithoutBaseURL(t *testing.T) {
	svc := New(Config{}, newFakeStore())
	svc.Start(context.Background())
	svc.Stop()
}

func TestValidateMerkleRootFallsBackToRemoteOnLocalMiss(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chain/validRoot", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "unseen-root", r.URL.Query().Get("root"))
		require.Equal(t, "5", r.URL.Query().Get("height"))
		json.NewEncoder(w).Encode(map[string]bool{"valid": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc := New(Config{BaseURL: srv.URL}, newFakeStore())

	ok, err := svc.ValidateMerkleRoot("unseen-root", 5)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestValidateMerkleRootWithoutBHSReturnsFalseOnLocalMiss(t *testing.T) {
	svc := New(Config{}, newFakeStore())
	ok, err := svc.ValidateMerkleRoot("unseen-root", 5)
	require.NoError(t, err)
	require.False(t, ok)
}
