package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"vahan-ops/config"
	"vahan-ops/core/auth"
	"vahan-ops/core/store"
)

const sessionCookieName = "vahan_session"

type AuthHandler struct {
	cfg      *config.AppConfig
	sessions *auth.SessionManager
	audits   store.AuditStore
	logger   *logrus.Logger
}

func NewAuthHandler(cfg *config.AppConfig, sessions *auth.SessionManager, audits store.AuditStore, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, sessions: sessions, audits: audits, logger: logger}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	rec, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			_ = h.audits.Append(r.Context(), req.Username, "auth.login_failed", "")
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    rec.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  rec.ExpiresAt,
	})
	_ = h.audits.Append(r.Context(), rec.Username, "auth.login", "")
	writeJSON(w, http.StatusOK, map[string]any{
		"username":   rec.Username,
		"role":       rec.Role,
		"expires_at": rec.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		_ = h.sessions.Logout(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": sess.Username, "role": sess.Role})
}
