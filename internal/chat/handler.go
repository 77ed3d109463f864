// Package chat exposes the conversation pipeline over HTTP.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/moroccoguide/guide/internal/api"
	"github.com/moroccoguide/guide/internal/auth"
	"github.com/moroccoguide/guide/internal/events"
	"github.com/moroccoguide/guide/internal/memory"
	"github.com/moroccoguide/guide/internal/middleware"
	"github.com/moroccoguide/guide/internal/pipeline"
	"github.com/moroccoguide/guide/internal/quota"
)

// Conversation is the pipeline surface the handlers drive.
type Conversation interface {
	Answer(ctx context.Context, sessionID, query string) (pipeline.Reply, error)
	Reset(ctx context.Context, sessionID string) error
	History(ctx context.Context, sessionID string) ([]memory.Entry, error)
}

// QuotaGate admits asks and records their cost.
type QuotaGate interface {
	Check(ctx context.Context, userID uuid.UUID) error
	Deduct(ctx context.Context, userID uuid.UUID, tokens int) error
}

type Handler struct {
	conv   Conversation
	quota  QuotaGate
	events events.Sink
}

// NewHandler wires the chat endpoints. gate may be nil to disable quotas.
func NewHandler(conv Conversation, gate QuotaGate, sink events.Sink) *Handler {
	return &Handler{conv: conv, quota: gate, events: sink}
}

type AskRequest struct {
	Query string `json:"query"`
}

type AskResponse struct {
	Answer string `json:"answer"`
}

// Ask handles POST /api/v1/chat/ask.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	// Blank questions must not use up quota.
	if err := pipeline.ValidateQuery(req.Query); err != nil {
		api.HandleError(w, toAppError(err))
		return
	}

	if h.quota != nil {
		if err := h.quota.Check(r.Context(), userID); err != nil {
			var exceeded *quota.ExceededError
			if errors.As(err, &exceeded) {
				h.emit(r, userID, events.TypeQuotaExceeded, events.SeverityWarn, map[string]string{
					"limit":  exceeded.Limit,
					"reason": exceeded.Message,
				})
				api.TooManyRequests(w, exceeded.Message, exceeded.RetryAfter)
				return
			}
			slog.Warn("chat: quota check failed", "user_id", userID, "error", err)
		}
	}

	reply, err := h.conv.Answer(r.Context(), userID.String(), req.Query)
	if err != nil {
		api.HandleError(w, toAppError(err))
		return
	}

	if h.quota != nil {
		if err := h.quota.Deduct(r.Context(), userID, reply.TokensUsed); err != nil {
			slog.Warn("chat: recording token usage failed", "user_id", userID, "tokens", reply.TokensUsed, "error", err)
		}
	}
	h.emit(r, userID, events.TypeConversationAnswered, events.SeverityInfo, map[string]string{
		"tokens_used": strconv.Itoa(reply.TokensUsed),
	})

	api.JSON(w, http.StatusOK, AskResponse{Answer: reply.Text})
}

// Reset handles POST /api/v1/chat/reset. It only ever clears the caller's
// own session.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.conv.Reset(r.Context(), userID.String()); err != nil {
		slog.Error("chat: clearing history", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.emit(r, userID, events.TypeConversationReset, events.SeverityInfo, nil)
	api.JSONMessage(w, http.StatusOK, "conversation history cleared")
}

// History handles GET /api/v1/chat/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	entries, err := h.conv.History(r.Context(), userID.String())
	if err != nil {
		slog.Error("chat: reading history", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, entries)
}

func (h *Handler) emit(r *http.Request, userID uuid.UUID, eventType, severity string, details map[string]string) {
	evt := events.New(userID, eventType, details)
	evt.Severity = severity
	evt.ResourceType = "conversation"
	evt.ResourceID = userID.String()
	evt.IPAddress = middleware.ClientIP(r)
	events.Emit(r.Context(), h.events, evt)
}

func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrInvalidToken)
		return uuid.Nil, false
	}
	return id, true
}

// toAppError maps a failed turn to an HTTP error carrying the pipeline's
// user-facing message.
func toAppError(err error) *api.AppError {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		return api.ErrInternalServer
	}
	switch pe.Kind {
	case pipeline.KindInvalidInput:
		return api.NewError(http.StatusBadRequest, pe.Message)
	case pipeline.KindGeneration:
		return api.NewError(http.StatusBadGateway, pe.Message)
	default:
		return api.NewError(http.StatusInternalServerError, pe.Message)
	}
}
