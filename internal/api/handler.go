package api

import (
	"encoding/json"
	"net/http"

	stderrors "errors"

	"github.com/openlms/admin-session/internal/models"
	"github.com/openlms/admin-session/internal/router"
	"github.com/openlms/admin-session/internal/session"
	pkgerrors "github.com/openlms/admin-session/pkg/errors"
)

type Handler struct {
	controller *session.Controller
	router     *router.Router
}

func NewHandler(ctrl *session.Controller, roleRouter *router.Router) *Handler {
	return &Handler{controller: ctrl, router: roleRouter}
}

type errorResponse struct {
	Error string `json:"error"`
}

type sessionResponse struct {
	models.SessionState
	Routing *router.Decision `json:"routing,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request, st models.SessionState, currentPath string) {
	resp := sessionResponse{SessionState: st}

	// The routing decision is computed synchronously once the state has
	// settled; restricted-audience roles terminate the session here and
	// leave with an external redirect.
	if st.IsAuthenticated && st.User != nil {
		dec := h.router.Route(r.Context(), st.User.Role, currentPath)
		if dec.EndSession {
			resp.SessionState = h.controller.Logout(r.Context())
		}
		if dec.Redirect {
			resp.Routing = &dec
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetSession reports the current session state. The console passes its
// current path so the one-shot role redirect can be decided in the same
// roundtrip.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	st := h.controller.CheckAuth(r.Context())
	h.writeSession(w, r, st, r.URL.Query().Get("path"))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Path     string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	st, err := h.controller.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, err)
		} else {
			h.writeError(w, http.StatusBadGateway, err)
		}
		return
	}
	h.writeSession(w, r, st, req.Path)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	st := h.controller.Logout(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessionResponse{SessionState: st})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	st := h.controller.RefreshAuth(r.Context())
	h.writeSession(w, r, st, r.URL.Query().Get("path"))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
