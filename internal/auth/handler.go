package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/moroccoguide/guide/internal/api"
	"github.com/moroccoguide/guide/internal/events"
	"github.com/moroccoguide/guide/internal/middleware"
	"github.com/moroccoguide/guide/internal/users"
)

// UserStore is the part of the user service the handlers need.
type UserStore interface {
	Create(ctx context.Context, name, email, passwordHash string) (*users.User, error)
	GetByEmail(ctx context.Context, email string) (*users.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type Handler struct {
	authSvc  *Service
	userSvc  UserStore
	events   events.Sink
	validate *validator.Validate
}

func NewHandler(authSvc *Service, userSvc UserStore, sink events.Sink) *Handler {
	return &Handler{
		authSvc:  authSvc,
		userSvc:  userSvc,
		events:   sink,
		validate: validator.New(),
	}
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}
	// The max tag counts characters; bcrypt limits bytes.
	if len(req.Password) > maxPasswordBytes {
		api.HandleError(w, api.NewValidationError(ErrPasswordTooLong.Error()))
		return
	}

	exists, err := h.userSvc.ExistsByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("checking email existence", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if exists {
		api.HandleError(w, api.ErrEmailAlreadyExists)
		return
	}

	hash, err := HashPassword(req.Password)
	if errors.Is(err, ErrPasswordTooLong) {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}
	if err != nil {
		slog.Error("hashing password", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	user, err := h.userSvc.Create(r.Context(), req.Name, req.Email, hash)
	if errors.Is(err, users.ErrEmailTaken) {
		api.HandleError(w, api.ErrEmailAlreadyExists)
		return
	}
	if err != nil {
		slog.Error("creating user", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	tokens, err := h.authSvc.GenerateTokens(r.Context(), user.ID.String(), user.Email)
	if err != nil {
		slog.Error("generating tokens", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	evt := events.New(user.ID, events.TypeUserRegistered, nil)
	evt.ResourceType = "user"
	evt.ResourceID = user.ID.String()
	evt.IPAddress = middleware.ClientIP(r)
	events.Emit(r.Context(), h.events, evt)

	api.JSON(w, http.StatusCreated, tokens)
}

// Login accepts a JSON body or an OAuth2 password-grant form where the email
// is sent as username.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLogin(r)
	if err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	user, err := h.userSvc.GetByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("getting user by email", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}
	if !VerifyCredentials(hash, req.Password) {
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	tokens, err := h.authSvc.GenerateTokens(r.Context(), user.ID.String(), user.Email)
	if err != nil {
		slog.Error("generating tokens", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, tokens)
}

func decodeLogin(r *http.Request) (LoginRequest, error) {
	var req LoginRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Email = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	tokens, err := h.authSvc.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		slog.Info("refresh rejected", "error", err)
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	api.JSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.authSvc.Logout(r.Context(), claims.UserID); err != nil {
		slog.Error("logging out", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "logged out successfully")
}

// Me returns the caller's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	user, err := h.userSvc.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("getting user by id", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if user == nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	api.JSON(w, http.StatusOK, user.Profile())
}
