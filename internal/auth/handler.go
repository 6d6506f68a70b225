package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type joinRequest struct {
	DisplayName string `json:"displayName"`
	Passcode    string `json:"passcode"`
	Role        Role   `json:"role"`
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.DisplayName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "displayName is required"})
		return
	}
	if req.Role == "" {
		req.Role = RoleViewer
	}

	result, err := h.service.Join(req.DisplayName, req.Passcode, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		case errors.Is(err, ErrUnknownRole):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown role"})
		default:
			slog.Error("join failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return
	}

	slog.Info("viewer joined", "viewer", result.Viewer.ID, "role", result.Viewer.Role)
	writeJSON(w, http.StatusOK, result)
}

// Me echoes the authenticated viewer.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ViewerFromContext(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
