package conversations

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/moroccoguide/guide/internal/api"
	"github.com/moroccoguide/guide/internal/auth"
	"github.com/moroccoguide/guide/internal/events"
	"github.com/moroccoguide/guide/internal/middleware"
)

type Handler struct {
	svc      *Service
	events   events.Sink
	validate *validator.Validate
}

func NewHandler(svc *Service, sink events.Sink) *Handler {
	return &Handler{svc: svc, events: sink, validate: validator.New()}
}

type SaveRequest struct {
	Query    string `json:"query" validate:"required,max=4000"`
	Response string `json:"response" validate:"required,max=20000"`
}

// Save handles POST /api/v1/conversations.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	result, err := h.svc.Save(r.Context(), userID, req.Query, req.Response)
	if err != nil {
		slog.Error("saving conversation", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	evt := events.New(userID, events.TypeConversationSaved, map[string]string{
		"created": strconv.FormatBool(result.Created),
	})
	evt.ResourceType = "conversation_log"
	evt.ResourceID = userID.String()
	evt.IPAddress = middleware.ClientIP(r)
	events.Emit(r.Context(), h.events, evt)

	msg := "conversation appended"
	if result.Created {
		msg = "conversation saved"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(api.Response{Data: result, Message: msg})
}

// List handles GET /api/v1/conversations.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	turns, total, err := h.svc.List(r.Context(), userID, page, pageSize)
	if err != nil {
		slog.Error("listing conversations", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, turns, total, page, pageSize)
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
