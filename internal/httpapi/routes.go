package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/events", s.handleEvents)

	r.Route("/api/mining", func(r chi.Router) {
		r.Get("/status", s.handleMiningStatus)
		r.Post("/start", s.handleMiningStart)
		r.Post("/stop", s.handleMiningStop)
	})

	r.Route("/api/blocks", func(r chi.Router) {
		r.Get("/", s.handleBlocksList)
		r.Get("/count", s.handleBlocksCount)
		r.Get("/{hash}", s.handleBlockByHash)
	})

	r.Route("/api/wallet", func(r chi.Router) {
		r.Post("/import", s.handleWalletImport)
		r.Post("/generate", s.handleWalletGenerate)
		r.Get("/export", s.handleWalletExport)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type peersView struct {
	Connected int    `json:"connected"`
	Known     int    `json:"known"`
	PeerID    string `json:"peer_id"`
}

type statusView struct {
	NodeID     string      `json:"node_id"`
	UptimeMS   int64       `json:"uptime_ms"`
	Peers      peersView   `json:"peers"`
	Mining     interface{} `json:"mining"`
	Wallet     interface{} `json:"wallet"`
	HeaderSync interface{} `json:"header_sync"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	d := s.daemon
	writeJSON(w, http.StatusOK, statusView{
		NodeID:   d.NodeID(),
		UptimeMS: d.Uptime().Milliseconds(),
		Peers: peersView{
			Connected: d.PeerCount(),
			Known:     d.KnownPeerCount(),
			PeerID:    d.GossipPeerID(),
		},
		Mining:     d.MiningStatus(),
		Wallet:     d.WalletStatus(),
		HeaderSync: d.HeaderSyncStatus(),
	})
}

func (s *Server) handleMiningStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.MiningStatus())
}

func (s *Server) handleMiningStart(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.StartMining(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.daemon.MiningStatus())
}

func (s *Server) handleMiningStop(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.StopMining(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.daemon.MiningStatus())
}

func (s *Server) handleBlocksList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	blocks, err := s.daemon.GetRecentBlocks(limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (s *Server) handleBlocksCount(w http.ResponseWriter, r *http.Request) {
	total, own, err := s.daemon.GetBlockCounts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"own": own, "total": total})
}

func (s *Server) handleBlockByHash(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	blk, err := s.daemon.GetBlockByHash(hash)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "block not found"})
		return
	}
	writeJSON(w, http.StatusOK, blk)
}

type walletImportRequest struct {
	WIF string `json:"wif"`
}

func (s *Server) handleWalletImport(w http.ResponseWriter, r *http.Request) {
	var req walletImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WIF == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing wif"})
		return
	}
	if err := s.daemon.ImportWallet(req.WIF); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.daemon.WalletStatus())
}

func (s *Server) handleWalletGenerate(w http.ResponseWriter, r *http.Request) {
	addr, err := s.daemon.GenerateNewWallet()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr})
}

func (s *Server) handleWalletExport(w http.ResponseWriter, r *http.Request) {
	wif, err := s.daemon.ExportWIF()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"wif": wif})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
