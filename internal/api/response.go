package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Response is the envelope for every non-paginated body.
type Response struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type PaginatedResponse struct {
	Data       any   `json:"data"`
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("writing response body failed", "status", status, "error", err)
	}
}

func JSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Data: data})
}

func JSONMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Message: message})
}

// JSONPaginated writes one page of a list. A nil slice is sent as [].
func JSONPaginated[T any](w http.ResponseWriter, status int, data []T, totalCount int64, page, pageSize int) {
	if data == nil {
		data = []T{}
	}
	writeJSON(w, status, PaginatedResponse{
		Data:       data,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

func JSONErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Error: message})
}

// TooManyRequests writes a 429 with a Retry-After hint rounded up to whole seconds.
func TooManyRequests(w http.ResponseWriter, message string, retryAfter time.Duration) {
	secs := int((retryAfter + time.Second - 1) / time.Second)
	if secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	JSONErrorMessage(w, http.StatusTooManyRequests, message)
}
