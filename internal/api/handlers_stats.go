package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shohag/vpnboard/internal/registry"
	"github.com/shohag/vpnboard/internal/status"
)

type StatsHandler struct {
	reg *registry.Registry
	agg *status.Aggregator
	log zerolog.Logger
}

func NewStatsHandler(reg *registry.Registry, agg *status.Aggregator, log zerolog.Logger) *StatsHandler {
	return &StatsHandler{reg: reg, agg: agg, log: log}
}

func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "vpnboard",
	})
}

func (h *StatsHandler) Status(w http.ResponseWriter, r *http.Request) {
	ep, ok := lookupServer(w, r, h.reg, h.log)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.agg.Check(r.Context(), *ep))
}

// StreamStatus writes one JSON line per server, in completion order, so a
// slow server never delays the others.
func (h *StatsHandler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	eps, err := h.reg.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list servers")
		writeError(w, http.StatusInternalServerError, "failed to list servers")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	rc.Flush()

	var mu sync.Mutex
	enc := json.NewEncoder(w)
	h.agg.CheckAll(r.Context(), eps, func(res status.Result) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(res); err != nil {
			return
		}
		rc.Flush()
	})
}

func (h *StatsHandler) Usage(w http.ResponseWriter, r *http.Request) {
	ep, ok := lookupServer(w, r, h.reg, h.log)
	if !ok {
		return
	}
	snap, err := h.agg.Usage(r.Context(), *ep)
	if err != nil {
		h.log.Error().Err(err).Str("server_id", ep.ID).Msg("failed to fetch usage")
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			code = http.StatusBadGateway
		}
		writeError(w, code, "failed to fetch data from server")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
