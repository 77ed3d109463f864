package audit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/moroccoguide/guide/internal/api"
	"github.com/moroccoguide/guide/internal/auth"
)

// Lister reads a user's audit trail.
type Lister interface {
	ListByUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]Log, int64, error)
}

type Handler struct {
	repo Lister
}

func NewHandler(repo Lister) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /api/v1/audit.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := parseListParams(r)
	logs, total, err := h.repo.ListByUser(r.Context(), userID, params)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, logs, total, params.Page, params.PageSize)
}

func parseListParams(r *http.Request) ListParams {
	params := DefaultListParams()
	q := r.URL.Query()

	params.EventType = q.Get("event_type")
	params.Severity = q.Get("severity")
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		params.Page = page
	}
	if size, err := strconv.Atoi(q.Get("page_size")); err == nil && size > 0 && size <= maxPageSize {
		params.PageSize = size
	}
	if t, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		params.From = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		params.To = &t
	}
	return params
}
