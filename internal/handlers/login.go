package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/eldtechnologies/sechat/internal/api/middleware"
	"github.com/eldtechnologies/sechat/internal/auth"
)

// LoginRequest represents the admin login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies the admin credentials and sets the admin cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	sess, err := h.auth.Login(req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.logger.Warn().
			Str("type", "security").
			Str("event", "admin_login_failed").
			Str("ip", middleware.RealIP(r)).
			Msg("admin login failed")
		h.Error(w, http.StatusUnauthorized, "이메일 또는 비밀번호가 올바르지 않습니다")
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AdminCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	h.JSON(w, http.StatusOK, sess)
}

// Logout clears the admin cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AdminCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	h.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
