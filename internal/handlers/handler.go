package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sechat/internal/auth"
	"github.com/eldtechnologies/sechat/internal/chat"
	"github.com/eldtechnologies/sechat/internal/realtime"
	"github.com/eldtechnologies/sechat/internal/store"
)

// Deps are the collaborators shared by all HTTP handlers.
type Deps struct {
	Gateway *chat.Gateway
	Rooms   *chat.Rooms
	Auth    *auth.Authenticator
	Hub     *realtime.Hub
	Store   store.DataStore
	Redis   *store.RedisStore // optional
	Logger  zerolog.Logger

	// SecureCookies marks the admin cookie Secure (production).
	SecureCookies bool
	// CheckOrigin validates websocket origins; nil allows all.
	CheckOrigin func(r *http.Request) bool
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	gateway       *chat.Gateway
	rooms         *chat.Rooms
	auth          *auth.Authenticator
	hub           *realtime.Hub
	store         store.DataStore
	redis         *store.RedisStore
	logger        zerolog.Logger
	upgrader      websocket.Upgrader
	secureCookies bool
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	checkOrigin := d.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		gateway:       d.Gateway,
		rooms:         d.Rooms,
		auth:          d.Auth,
		hub:           d.Hub,
		store:         d.Store,
		redis:         d.Redis,
		logger:        d.Logger.With().Str("component", "http").Logger(),
		secureCookies: d.SecureCookies,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// writeError maps a chat error to its HTTP status. Store failures are
// logged and reported generically.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *chat.ValidationError
		forbidden  *chat.ForbiddenError
		notFound   *chat.NotFoundError
		conflict   *chat.ConflictError
	)

	switch {
	case errors.As(err, &validation):
		h.Error(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &forbidden):
		h.Error(w, http.StatusForbidden, err.Error())
	case errors.As(err, &notFound):
		h.Error(w, http.StatusNotFound, notFound.Message)
	case errors.As(err, &conflict):
		h.Error(w, http.StatusConflict, conflict.Message)
	default:
		h.logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		h.Error(w, http.StatusInternalServerError, "서버 오류가 발생했습니다")
	}
}

// decodeJSON decodes a single JSON object into dst, rejecting unknown
// fields and trailing data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &chat.ValidationError{Message: fmt.Sprintf("잘못된 요청 형식입니다: %v", err)}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &chat.ValidationError{Message: "잘못된 요청 형식입니다"}
	}
	return nil
}
