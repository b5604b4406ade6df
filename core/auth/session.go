package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"vahan-ops/config"
	"vahan-ops/core/store"
)

type contextKey string

// SessionContextKey carries the authenticated *store.SessionRecord on the
// request context.
const SessionContextKey contextKey = "session"

var ErrInvalidCredentials = errors.New("invalid credentials")

type SessionManager struct {
	users    store.UsersStore
	sessions store.SessionStore
	cfg      *config.AppConfig
}

func NewSessionManager(users store.UsersStore, sessions store.SessionStore, cfg *config.AppConfig) *SessionManager {
	return &SessionManager{users: users, sessions: sessions, cfg: cfg}
}

// Login verifies the credentials and opens a session.
func (m *SessionManager) Login(ctx context.Context, username, password string) (*store.SessionRecord, error) {
	user, err := m.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.Active || !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	now := time.Now().UTC()
	rec := &store.SessionRecord{
		ID:         uuid.Must(uuid.NewV4()).String(),
		UserID:     user.ID,
		Username:   user.Username,
		Role:       user.Role,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(m.cfg.EffectiveSessionTTL()),
	}
	if err := m.sessions.SaveSession(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Resolve returns the live session for an id, refreshing its activity
// window. Expired or unknown sessions resolve to nil.
func (m *SessionManager) Resolve(ctx context.Context, sessID string) (*store.SessionRecord, error) {
	if sessID == "" {
		return nil, nil
	}
	rec, err := m.sessions.GetSession(ctx, sessID)
	if err != nil || rec == nil {
		return nil, err
	}
	now := time.Now().UTC()
	if !rec.ExpiresAt.After(now) {
		_ = m.sessions.DeleteSession(ctx, sessID)
		return nil, nil
	}
	_ = m.sessions.UpdateActivity(ctx, sessID, now, m.cfg.EffectiveSessionTTL())
	return rec, nil
}

func (m *SessionManager) Logout(ctx context.Context, sessID string) error {
	return m.sessions.DeleteSession(ctx, sessID)
}

// SessionFromContext extracts the session middleware stored, if any.
func SessionFromContext(ctx context.Context) *store.SessionRecord {
	rec, _ := ctx.Value(SessionContextKey).(*store.SessionRecord)
	return rec
}
