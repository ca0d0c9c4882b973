// Package handler exposes the agent and profile services over HTTP. The same
// router serves the standalone server and the Lambda adapter.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"health-agent/internal/domain"
	"health-agent/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 1 << 20
)

type Agent interface {
	GenerateResponse(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	GenerateSummary(ctx context.Context, in usecase.SummaryInput) (usecase.SummaryOutput, error)
}

type Profiles interface {
	SaveProfile(ctx context.Context, userID int64, delta domain.ProfileDelta) error
	LogHealthData(ctx context.Context, in usecase.HealthLog) error
	UserContext(ctx context.Context, userID int64) (usecase.UserContextOutput, error)
	ResetUser(ctx context.Context, userID int64) error
}

type Handler struct {
	agent    Agent
	profiles Profiles
	logger   *slog.Logger
	router   chi.Router
}

func NewHandler(agent Agent, profiles Profiles, logger *slog.Logger) (*Handler, error) {
	if agent == nil {
		return nil, errors.New("handler: agent must not be nil")
	}
	if profiles == nil {
		return nil, errors.New("handler: profiles must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{agent: agent, profiles: profiles, logger: logger}
	h.router = h.routes()
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(correlationID)
	r.Use(h.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Heartbeat("/healthz"))

	r.Post("/chat", h.chat)
	r.Post("/summary", h.summary)
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/", h.getUser)
		r.Delete("/", h.resetUser)
		r.Put("/profile", h.saveProfile)
		r.Post("/logs", h.logHealth)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "route_not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "method_not_allowed"})
	})
	return r
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	messages, err := toMessages(req.Messages)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out, err := h.agent.GenerateResponse(r.Context(), usecase.ChatInput{
		Messages: messages,
		UserID:   req.UserID,
		Topic:    req.Topic,
		UseInfo:  req.UseInfo,
		UseRAG:   req.UseRAG,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newChatResponse(out))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	messages, err := toMessages(req.Messages)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out, err := h.agent.GenerateSummary(r.Context(), usecase.SummaryInput{
		Messages: messages,
		UserID:   req.UserID,
		UseRAG:   req.UseRAG,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		RunID:         out.RunID,
		HealthSummary: out.Summary,
		Fallback:      out.Fallback,
		UserContext:   out.UserContext,
	})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.profiles.UserContext(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Context: out.Context, Persona: out.Persona})
}

func (h *Handler) saveProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var delta domain.ProfileDelta
	if err := decodeBody(r, &delta); err != nil {
		h.fail(w, r, err)
		return
	}
	if delta.IsEmpty() {
		h.fail(w, r, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_profile"})
		return
	}
	if err := h.profiles.SaveProfile(r.Context(), userID, delta); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logHealth(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req logRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.profiles.LogHealthData(r.Context(), req.healthLog(userID)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.profiles.ResetUser(r.Context(), userID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps err onto a status code and the JSON error body.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, reason := usecase.ErrorInternal, "internal_error"
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		code, reason = ucErr.Code, ucErr.Reason
	}
	status := statusFor(code)

	attrs := []any{"correlation_id", CorrelationID(r.Context()), "path", r.URL.Path, "code", code, "reason", reason, "err", err}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", attrs...)
	} else {
		h.logger.InfoContext(r.Context(), "request rejected", attrs...)
	}
	writeJSON(w, status, errorResponse{Error: string(code), Reason: reason})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func userIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_user_id", Err: err}
	}
	return id, nil
}

// decodeBody rejects unknown fields and trailing data.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err}
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: errors.New("trailing data after JSON body")}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

type correlationKey struct{}

// CorrelationID returns the request's correlation ID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// correlationID echoes the caller's X-Correlation-Id or assigns a new one.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, id)))
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.InfoContext(r.Context(), "http request",
			"correlation_id", CorrelationID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
