package handlers

import (
	"context"
	"net/http"

	"immich-service/models"
)

// ServerInfoHandler answers the unauthenticated /server-info endpoints
type ServerInfoHandler struct {
	version models.ServerVersionResponse
}

// NewServerInfoHandler creates the handler for a fixed server version
func NewServerInfoHandler(version models.ServerVersionResponse) *ServerInfoHandler {
	return &ServerInfoHandler{version: version}
}

// Ping handles GET /server-info/ping
func (h *ServerInfoHandler) Ping(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ServerPingResponse{Res: "pong"})
}

// Version handles GET /server-info/version
func (h *ServerInfoHandler) Version(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.version)
}
