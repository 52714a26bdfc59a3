// Package api exposes the triage sessions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xaenox/kontify-triage/internal/models"
	"github.com/xaenox/kontify-triage/internal/session"
)

const maxBodyBytes = 64 << 10

// LeadLister lists escalated cases, newest first.
type LeadLister interface {
	Recent(ctx context.Context, limit int) ([]*models.Lead, error)
}

type Handler struct {
	sessions *session.Manager
	leads    LeadLister
	logger   *zap.Logger
}

func NewHandler(sessions *session.Manager, leads LeadLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, leads: leads, logger: logger}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// NewRouter wires the middleware, the session routes, /health and /metrics.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Handle("/metrics", promhttp.Handler())
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.CloseSession)
		r.Post("/greet", h.Greet)
		r.Post("/messages", h.SendMessage)
		r.Post("/reset", h.Reset)
		r.Post("/contact", h.SaveContact)
		r.Post("/escalate", h.Escalate)
	})
	r.Get("/leads", h.ListLeads)
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Accepted bool                 `json:"accepted"`
	Reason   session.RejectReason `json:"reason,omitempty"`
	Reply    *models.Message      `json:"reply,omitempty"`
	Fallback bool                 `json:"fallback,omitempty"`
	State    session.State        `json:"state"`
}

// withSession opens the session named in the path and runs fn, reopening
// once if the session was evicted in between.
func (h *Handler) withSession(r *http.Request, fn func(*session.Session) error) error {
	id := chi.URLParam(r, "id")
	for attempt := 0; ; attempt++ {
		s, err := h.sessions.Open(r.Context(), id)
		if err != nil {
			return err
		}
		err = fn(s)
		if errors.Is(err, session.ErrSessionClosed) && attempt == 0 {
			continue
		}
		return err
	}
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	var st session.State
	err := h.withSession(r, func(s *session.Session) error {
		st = s.State()
		return nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, st)
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Close(chi.URLParam(r, "id")) {
		Error(w, http.StatusNotFound, "session not open")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Greet(w http.ResponseWriter, r *http.Request) {
	var st session.State
	err := h.withSession(r, func(s *session.Session) error {
		var err error
		st, err = s.Greet(r.Context())
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, st)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var out session.Outcome
	err := h.withSession(r, func(s *session.Session) error {
		var err error
		out, err = s.SendMessage(r.Context(), req.Message)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, messageResponse{
		Accepted: out.Accepted,
		Reason:   out.Reason,
		Reply:    out.Reply,
		Fallback: out.Fallback,
		State:    out.State,
	})
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var st session.State
	err := h.withSession(r, func(s *session.Session) error {
		var err error
		st, err = s.Reset(r.Context())
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, st)
}

func (h *Handler) SaveContact(w http.ResponseWriter, r *http.Request) {
	var data models.ContactData
	if !decodeBody(w, r, &data) {
		return
	}

	var st session.State
	err := h.withSession(r, func(s *session.Session) error {
		var err error
		st, err = s.SaveContactData(r.Context(), data)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, st)
}

func (h *Handler) Escalate(w http.ResponseWriter, r *http.Request) {
	var st session.State
	err := h.withSession(r, func(s *session.Session) error {
		var err error
		st, err = s.Escalate(r.Context())
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, st)
}

func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			Error(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	leads, err := h.leads.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list leads", zap.Error(err))
		Error(w, http.StatusInternalServerError, "failed to list leads")
		return
	}
	if leads == nil {
		leads = []*models.Lead{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"leads": leads})
}

// fail maps domain errors to status codes and hides everything else.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  "invalid contact data",
			"fields": verr.Fields,
		})
	case errors.Is(err, session.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, "message is empty")
	case errors.Is(err, session.ErrInvalidID):
		Error(w, http.StatusBadRequest, "session id is empty")
	case errors.Is(err, session.ErrNotEscalatable):
		Error(w, http.StatusConflict, "case does not need an expert yet")
	default:
		h.logger.Error("Request failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("request_id", chiMiddleware.GetReqID(r.Context())))
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		Error(w, http.StatusUnsupportedMediaType, "expected application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
