package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/b0ase/clawminer/internal/daemon"
)

const (
	sseHeartbeatInterval = 30 * time.Second
	sseSnapshotInterval  = 5 * time.Second
)

// handleEvents streams the daemon's event bus as text/event-stream,
// sending an initial status snapshot, a fresh snapshot every 5s, and a
// heartbeat comment every 30s so intermediate proxies don't close the
// connection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, unsubscribe := s.daemon.Events().Subscribe()
	defer unsubscribe()

	writeEvent(w, daemon.Event{
		Type:      "status-snapshot",
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"mining": s.daemon.MiningStatus()},
	})
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()
	snapshot := time.NewTicker(sseSnapshotInterval)
	defer snapshot.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeEvent(w, ev)
			flusher.Flush()
		case <-snapshot.C:
			writeEvent(w, daemon.Event{
				Type:      "status-snapshot",
				Timestamp: time.Now(),
				Data:      map[string]interface{}{"mining": s.daemon.MiningStatus()},
			})
			flusher.Flush()
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev daemon.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, body)
}
