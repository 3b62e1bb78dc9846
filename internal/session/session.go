// Package session binds an authenticated user to a browser across requests.
//
// A session is a row in the sessions table keyed by a random UUID. The client
// holds that UUID inside an HS256-signed token in the galaxy_session cookie,
// so a forged or tampered cookie is rejected before the database is queried,
// and logging out deletes the row so the token stops working immediately.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"galaxy/internal/database"
	"galaxy/internal/models"
)

// CookieName is the name of the session cookie.
const CookieName = "galaxy_session"

const issuer = "galaxy"

var (
	ErrNoSession    = errors.New("session not found or expired")
	ErrInvalidToken = errors.New("invalid session token")
)

// Store persists sessions.
type Store interface {
	CreateSession(ctx context.Context, sess *models.Session) error
	FindSession(ctx context.Context, uuid string) (*models.Session, error)
	DeleteSession(ctx context.Context, uuid string) error
	DeleteUserSessions(ctx context.Context, userID int) error
	RenameUserSessions(ctx context.Context, userID int, username string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Session is the identity attached to a request.
type Session struct {
	userID   int
	username string
	token    string
	expires  time.Time
}

func (s *Session) UserID() int { return s.userID }
func (s *Session) Username() string { return s.username }
func (s *Session) Expires() time.Time { return s.expires }

type Options struct {
	Secret       []byte
	Expiration   time.Duration
	CookieSecure bool
}

// Manager issues, resolves and revokes sessions.
type Manager struct {
	store      Store
	secret     []byte
	expiration time.Duration
	secure     bool
	log        *zap.Logger
	now        func() time.Time
}

func NewManager(store Store, opts Options, log *zap.Logger) *Manager {
	return &Manager{
		store:      store,
		secret:     opts.Secret,
		expiration: opts.Expiration,
		secure:     opts.CookieSecure,
		log:        log,
		now:        time.Now,
	}
}

type claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Start replaces any previous sessions of the user with a new one and sets
// the session cookie.
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, userID int, username string) (*Session, error) {
	if err := m.store.DeleteUserSessions(ctx, userID); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	now := m.now()
	row := &models.Session{
		UserID:   userID,
		Username: username,
		UUID:     uuid.NewString(),
		Expires:  now.Add(m.expiration),
	}
	if err := m.store.CreateSession(ctx, row); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	token, err := m.sign(row, now)
	if err != nil {
		return nil, err
	}
	m.setCookie(w, token, row.Expires)
	return &Session{userID: userID, username: username, token: row.UUID, expires: row.Expires}, nil
}

// Load resolves the session carried by r. Expired sessions are deleted.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}
	sid, err := m.parse(cookie.Value, true)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	row, err := m.store.FindSession(ctx, sid)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("session: %w", err)
	}
	if m.now().After(row.Expires) {
		if err := m.store.DeleteSession(ctx, sid); err != nil && !errors.Is(err, database.ErrNotFound) {
			m.log.Warn("failed to delete expired session", zap.Error(err))
		}
		return nil, ErrNoSession
	}
	return &Session{userID: row.UserID, username: row.Username, token: row.UUID, expires: row.Expires}, nil
}

// End revokes the session carried by r, if any, and always clears the cookie.
func (m *Manager) End(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	defer m.ClearCookie(w)

	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	sid, err := m.parse(cookie.Value, false)
	if err != nil {
		return nil
	}
	if err := m.store.DeleteSession(ctx, sid); err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

// Rename records a new username on the live sessions of a user.
func (m *Manager) Rename(ctx context.Context, userID int, username string) error {
	if err := m.store.RenameUserSessions(ctx, userID, username); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

// Cleanup deletes every expired session.
func (m *Manager) Cleanup(ctx context.Context) (int64, error) {
	return m.store.DeleteExpiredSessions(ctx, m.now())
}

func (m *Manager) sign(row *models.Session, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SessionID: row.UUID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.Itoa(row.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(row.Expires),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("session: failed to sign token: %w", err)
	}
	return signed, nil
}

// parse verifies the token signature and returns the session id. With
// validate false, time-based claims are not checked so that an expired
// token can still be revoked.
func (m *Manager) parse(value string, validate bool) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	}
	if !validate {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	var c claims
	_, err := jwt.ParseWithClaims(value, &c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil || c.SessionID == "" {
		return "", ErrInvalidToken
	}
	return c.SessionID, nil
}

func (m *Manager) setCookie(w http.ResponseWriter, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes the session cookie from the client.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type contextKey string

const sessionContextKey contextKey = "session"

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// Current returns the session of r, or nil when the request is anonymous.
func Current(r *http.Request) *Session {
	return FromContext(r.Context())
}

// FromContext returns the session stored in ctx, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionContextKey).(*Session)
	return s
}
