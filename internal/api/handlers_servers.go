package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shohag/vpnboard/internal/apperrors"
	"github.com/shohag/vpnboard/internal/models"
	"github.com/shohag/vpnboard/internal/outline"
	"github.com/shohag/vpnboard/internal/registry"
)

type ServerHandler struct {
	reg     *registry.Registry
	clients outline.Factory
	log     zerolog.Logger
}

func NewServerHandler(reg *registry.Registry, clients outline.Factory, log zerolog.Logger) *ServerHandler {
	return &ServerHandler{reg: reg, clients: clients, log: log}
}

// lookupServer resolves the {id} URL parameter, writing the error response
// itself when the id is malformed or unknown.
func lookupServer(w http.ResponseWriter, r *http.Request, reg *registry.Registry, log zerolog.Logger) (*models.Endpoint, bool) {
	id := chi.URLParam(r, "id")
	if err := models.ValidateServerID(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid server id")
		return nil, false
	}
	ep, err := reg.Get(r.Context(), id)
	if errors.Is(err, apperrors.ErrNotFound) {
		writeError(w, http.StatusNotFound, "server not found")
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("server_id", id).Msg("failed to load server")
		writeError(w, http.StatusInternalServerError, "failed to load server")
		return nil, false
	}
	return ep, true
}

func (h *ServerHandler) List(w http.ResponseWriter, r *http.Request) {
	eps, err := h.reg.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list servers")
		writeError(w, http.StatusInternalServerError, "failed to list servers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"servers": models.ToSafeViews(eps),
	})
}

type createServerRequest struct {
	Name   string `json:"name"`
	APIURL string `json:"apiUrl"`
}

func (h *ServerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createServerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := models.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, "server name is required (max 100 characters)")
		return
	}
	if err := models.ValidateConnectionURL(req.APIURL); err != nil {
		writeError(w, http.StatusBadRequest, "invalid API URL, must be https://ip:port/token")
		return
	}

	ep, err := h.reg.Add(r.Context(), req.Name, req.APIURL)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to add server")
		writeError(w, http.StatusInternalServerError, "failed to add server")
		return
	}

	h.log.Info().Str("server_id", ep.ID).Msg("server added")
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"server": models.ToSafeView(*ep),
	})
}

func (h *ServerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ep, ok := lookupServer(w, r, h.reg, h.log)
	if !ok {
		return
	}
	if err := h.reg.Remove(r.Context(), ep.ID); err != nil {
		h.log.Error().Err(err).Str("server_id", ep.ID).Msg("failed to remove server")
		writeError(w, http.StatusInternalServerError, "failed to remove server")
		return
	}
	writeMessage(w, http.StatusOK, "Server removed")
}

type nameRequest struct {
	Name string `json:"name"`
}

// Rename renames the remote server first and mirrors the name locally only
// once the remote accepted it.
func (h *ServerHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ep, ok := lookupServer(w, r, h.reg, h.log)
	if !ok {
		return
	}
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := models.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid server name")
		return
	}
	name := strings.TrimSpace(req.Name)

	if err := h.clients(ep.ConnectionURL).RenameServer(r.Context(), name); err != nil {
		h.log.Error().Err(err).Str("server_id", ep.ID).Msg("rename server failed")
		writeError(w, http.StatusInternalServerError, "failed to rename server")
		return
	}
	if err := h.reg.Rename(r.Context(), ep.ID, name); err != nil {
		h.log.Error().Err(err).Str("server_id", ep.ID).Msg("failed to store server name")
		writeError(w, statusFor(err), "failed to store server name")
		return
	}

	ep.Name = name
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"server": models.ToSafeView(*ep),
	})
}
