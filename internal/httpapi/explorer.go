package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/b0ase/clawminer/internal/daemon"
)

// explorerRoutes mounts a small read-only block-explorer surface on a
// gorilla/mux router, next to the chi-based API routes. Kept for operators
// with existing explorer tooling pointed at these paths.
func explorerRoutes(d *daemon.Daemon) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/blocks", explorerBlocksHandler(d)).Methods("GET")
	r.HandleFunc("/blocks/{height:[0-9]+}", explorerBlockByHeightHandler(d)).Methods("GET")
	return r
}

func explorerBlocksHandler(d *daemon.Daemon) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blocks, err := d.GetRecentBlocks(20, 0)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		explorerWriteJSON(w, blocks)
	}
}

func explorerBlockByHeightHandler(d *daemon.Daemon) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		height, err := strconv.ParseInt(mux.Vars(r)["height"], 10, 64)
		if err != nil {
			http.Error(w, "bad height", http.StatusBadRequest)
			return
		}
		blk, err := d.GetBlockByHeight(height)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		explorerWriteJSON(w, blk)
	}
}

func explorerWriteJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
