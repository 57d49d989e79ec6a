package http

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"faculty-quiz-service/internal/app"
	"faculty-quiz-service/internal/domain"
)

// APIHandler serves the read-only REST endpoints next to the WebSocket.
type APIHandler struct {
	service *app.QuizService
	log     *zap.Logger
}

func NewAPIHandler(service *app.QuizService, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{service: service, log: logger}
}

// Register mounts the endpoints on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/api/attempts/recent", h.recent)
	mux.HandleFunc("/api/attempts/global", h.global)
	mux.HandleFunc("/api/identity", h.identity)
}

func (h *APIHandler) health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func (h *APIHandler) recent(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	records, err := h.service.Recent(r.Context(), r.URL.Query().Get("device"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *APIHandler) global(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	records, err := h.service.Global(r.Context(), r.URL.Query().Get("device"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *APIHandler) identity(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	identity, err := h.service.Identity(r.Context(), r.URL.Query().Get("device"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"identity": identity})
}

func (h *APIHandler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrDeviceRequired) {
		status = http.StatusBadRequest
	} else {
		h.log.Error("api request failed", zap.Error(err))
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, errorPayload{Message: "method not allowed"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
