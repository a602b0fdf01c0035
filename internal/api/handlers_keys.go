package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shohag/vpnboard/internal/models"
	"github.com/shohag/vpnboard/internal/outline"
	"github.com/shohag/vpnboard/internal/registry"
)

type KeyHandler struct {
	reg     *registry.Registry
	clients outline.Factory
	log     zerolog.Logger
}

func NewKeyHandler(reg *registry.Registry, clients outline.Factory, log zerolog.Logger) *KeyHandler {
	return &KeyHandler{reg: reg, clients: clients, log: log}
}

func keyIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	keyID := chi.URLParam(r, "keyId")
	if err := models.ValidateKeyID(keyID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return "", false
	}
	return keyID, true
}

func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	ep, ok := lookupServer(w, r, h.reg, h.log)
	if !ok {
		return
	}
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := models.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid key name")
		return
	}

	key, err := h.clients(ep.ConnectionURL).CreateAccessKey(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		h.log.Error().Err(err).Str("server_id", ep.ID).Msg("create access key failed")
		writeError(w, http.StatusInternalServerError, "failed to add key")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"key": key,
	})
}

func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	keyID, ok := keyIDParam(w, r)
	if !ok {
		return
	}
	ep, ok := lookupServer(w, r, h.reg, h.log)
	if !ok {
		return
	}

	if err := h.clients(ep.ConnectionURL).DeleteAccessKey(r.Context(), keyID); err != nil {
		h.log.Error().Err(err).Str("server_id", ep.ID).Str("key_id", keyID).Msg("delete access key failed")
		writeError(w, http.StatusInternalServerError, "failed to delete key")
		return
	}
	writeMessage(w, http.StatusOK, "Key deleted")
}

func (h *KeyHandler) Rename(w http.ResponseWriter, r *http.Request) {
	keyID, ok := keyIDParam(w, r)
	if !ok {
		return
	}
	ep, ok := lookupServer(w, r, h.reg, h.log)
	if !ok {
		return
	}
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := models.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid key name")
		return
	}

	if err := h.clients(ep.ConnectionURL).RenameAccessKey(r.Context(), keyID, strings.TrimSpace(req.Name)); err != nil {
		h.log.Error().Err(err).Str("server_id", ep.ID).Str("key_id", keyID).Msg("rename access key failed")
		writeError(w, http.StatusInternalServerError, "failed to rename key")
		return
	}
	writeMessage(w, http.StatusOK, "Key renamed")
}

type limitRequest struct {
	Bytes json.RawMessage `json:"bytes"`
}

// parseLimit returns nil for an explicit null, meaning the limit is removed.
// A missing field is rejected.
func parseLimit(raw json.RawMessage) (*int64, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil, true
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil || n < 0 {
		return nil, false
	}
	return &n, true
}

func (h *KeyHandler) SetLimit(w http.ResponseWriter, r *http.Request) {
	keyID, ok := keyIDParam(w, r)
	if !ok {
		return
	}
	ep, ok := lookupServer(w, r, h.reg, h.log)
	if !ok {
		return
	}
	var req limitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	limit, ok := parseLimit(req.Bytes)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit value")
		return
	}

	client := h.clients(ep.ConnectionURL)
	var err error
	if limit == nil {
		err = client.RemoveDataLimit(r.Context(), keyID)
	} else {
		err = client.SetDataLimit(r.Context(), keyID, *limit)
	}
	if err != nil {
		h.log.Error().Err(err).Str("server_id", ep.ID).Str("key_id", keyID).Msg("update data limit failed")
		writeError(w, http.StatusInternalServerError, "failed to update limit")
		return
	}
	writeMessage(w, http.StatusOK, "Limit updated")
}
