package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/fwojciec/harvest"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ControlPlane is the part of control.Plane the control API drives.
type ControlPlane interface {
	Signal() harvest.Signal
	Status() harvest.Status
	SetSignal(sig harvest.Signal) error
}

// RunFunc starts a run in the background. It returns an ECONFLICT error
// when a run cannot start now.
type RunFunc func(params harvest.RunParams) error

// Handler serves the operator control API.
type Handler struct {
	plane   ControlPlane
	logger  *slog.Logger
	run     RunFunc
	stats   func() harvest.Stats
	metrics http.Handler
}

// NewHandler creates a control API handler for plane.
func NewHandler(plane ControlPlane, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{plane: plane, logger: logger}
}

// WithRun enables POST /run.
func (h *Handler) WithRun(fn RunFunc) *Handler {
	h.run = fn
	return h
}

// WithStats adds live stats to GET /status.
func (h *Handler) WithStats(fn func() harvest.Stats) *Handler {
	h.stats = fn
	return h
}

// WithMetrics mounts a metrics handler at GET /metrics.
func (h *Handler) WithMetrics(m http.Handler) *Handler {
	h.metrics = m
	return h
}

// Router returns a chi router with the control routes.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", h.GetStatus)
	r.Post("/signal", h.PostSignal)
	r.Post("/pause", h.signalRoute(harvest.SignalPause))
	r.Post("/resume", h.signalRoute(harvest.SignalNone))
	r.Post("/stop", h.signalRoute(harvest.SignalStop))
	if h.run != nil {
		r.Post("/run", h.PostRun)
	}
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	return r
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Signal harvest.Signal `json:"signal"`
	Status harvest.Status `json:"status"`
	Stats  *harvest.Stats `json:"stats,omitempty"`
}

// GetStatus reports the current signal and status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.status())
}

// SignalRequest is the body of POST /signal.
type SignalRequest struct {
	Signal string `json:"signal"`
}

// PostSignal sets the signal named in the request body.
func (h *Handler) PostSignal(w http.ResponseWriter, r *http.Request) {
	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", harvest.EINVALID)
		return
	}
	sig, err := harvest.ParseSignal(req.Signal)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.setSignal(w, sig)
}

func (h *Handler) signalRoute(sig harvest.Signal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.setSignal(w, sig)
	}
}

func (h *Handler) setSignal(w http.ResponseWriter, sig harvest.Signal) {
	if err := h.plane.SetSignal(sig); err != nil {
		h.respondErr(w, err)
		return
	}
	h.logger.Info("signal received", "signal", sig)
	respondJSON(w, http.StatusOK, h.status())
}

// PostRun starts a run. The body is optional RunParams JSON.
func (h *Handler) PostRun(w http.ResponseWriter, r *http.Request) {
	var params harvest.RunParams
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil && err != io.EOF {
			respondError(w, http.StatusBadRequest, "invalid JSON body", harvest.EINVALID)
			return
		}
	}
	if err := h.run(params); err != nil {
		h.respondErr(w, err)
		return
	}
	h.logger.Info("run requested", "pages", params.Pages, "limit", params.Limit)
	respondJSON(w, http.StatusAccepted, h.status())
}

func (h *Handler) status() StatusResponse {
	resp := StatusResponse{Signal: h.plane.Signal(), Status: h.plane.Status()}
	if h.stats != nil {
		s := h.stats()
		resp.Stats = &s
	}
	return resp
}

// respondErr writes an application error with its HTTP status.
func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	code := harvest.ErrorCode(err)
	if code == harvest.EINTERNAL {
		h.logger.Error("control request", "err", err)
	}
	respondError(w, errorStatus(code), harvest.ErrorMessage(err), code)
}

// errorStatus maps an application error code to an HTTP status.
func errorStatus(code string) int {
	switch code {
	case harvest.EINVALID:
		return http.StatusBadRequest
	case harvest.ENOTFOUND:
		return http.StatusNotFound
	case harvest.ECONFLICT, harvest.ESTOPPED, harvest.ECLOSED:
		return http.StatusConflict
	case harvest.EUNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message, code string) {
	respondJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
