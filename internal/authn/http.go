// ABOUTME: HTTP handlers and middleware for the authentication ceremonies
// ABOUTME: Maps all verification failures to one opaque 401 response

package authn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paceline/paceline/internal/store"
)

// SessionCookieName is the browser session cookie.
const SessionCookieName = "paceline_session"

// Handler exposes the ceremony endpoints and session middleware.
type Handler struct {
	service    *Service
	sessions   store.SessionStore
	users      store.UserStore
	tokens     *TokenVerifier
	logger     *slog.Logger
	sessionTTL time.Duration
}

// NewHandler creates the HTTP handler for authentication routes.
func NewHandler(service *Service, sessions store.SessionStore, users store.UserStore, tokens *TokenVerifier, sessionTTL time.Duration) *Handler {
	return &Handler{
		service:    service,
		sessions:   sessions,
		users:      users,
		tokens:     tokens,
		logger:     slog.Default().With("component", "authn-http"),
		sessionTTL: sessionTTL,
	}
}

// Routes registers the ceremony endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.WithSession)
	r.Post("/register/begin", h.handleRegisterBegin)
	r.Post("/register/finish", h.handleRegisterFinish)
	r.Post("/login/begin", h.handleLoginBegin)
	r.Post("/login/finish", h.handleLoginFinish)
	r.Post("/login/password", h.handlePasswordLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

// sessionContextKey is the key type for storing the session in context.
type sessionContextKey struct{}

// userContextKey is the key type for storing the authenticated user in context.
type userContextKey struct{}

// SessionFromContext retrieves the current session, or nil.
func SessionFromContext(ctx context.Context) *store.Session {
	s, _ := ctx.Value(sessionContextKey{}).(*store.Session)
	return s
}

// UserFromContext retrieves the authenticated user, or nil.
func UserFromContext(ctx context.Context) *store.User {
	u, _ := ctx.Value(userContextKey{}).(*store.User)
	return u
}

// WithSession loads the browser session from its cookie, creating a fresh
// anonymous session (and cookie) when none exists. Ceremonies need a session
// to park their challenge on before the user is known.
func (h *Handler) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := h.loadSession(r)
		if session == nil {
			var err error
			session, err = h.createSession(w, r)
			if err != nil {
				h.logger.Error("failed to create session", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}

		ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects requests without an authenticated identity. Accepts
// either an authenticated browser session or a bearer API token; the
// response is the same opaque 401 whichever check fails.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, session := h.authenticate(r)
		if user == nil {
			h.writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		if session != nil {
			ctx = context.WithValue(ctx, sessionContextKey{}, session)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves the request identity from a bearer token or an
// authenticated session. Returns nils when neither verifies.
func (h *Handler) authenticate(r *http.Request) (*store.User, *store.Session) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		tokenString := strings.TrimPrefix(auth, "Bearer ")
		userID, err := h.tokens.Verify(tokenString)
		if err != nil {
			h.logger.Debug("token verification failed", "error", err)
			return nil, nil
		}
		user, err := h.users.GetUser(r.Context(), userID)
		if err != nil {
			return nil, nil
		}
		return user, nil
	}

	session := h.loadSession(r)
	if session == nil || session.UserID == "" {
		return nil, nil
	}
	user, err := h.users.GetUser(r.Context(), session.UserID)
	if err != nil {
		return nil, nil
	}
	return user, session
}

func (h *Handler) loadSession(r *http.Request) *store.Session {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	session, err := h.sessions.GetSession(r.Context(), cookie.Value)
	if err != nil {
		return nil
	}
	return session
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) (*store.Session, error) {
	sessionID, err := generateSecureToken(32)
	if err != nil {
		return nil, err
	}

	session := &store.Session{
		ID:        sessionID,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(h.sessionTTL),
	}

	if err := h.sessions.CreateSession(r.Context(), session); err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	return session, nil
}

// handleRegisterBegin starts passkey registration for the signed-in user.
func (h *Handler) handleRegisterBegin(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session.UserID == "" {
		h.writeUnauthorized(w)
		return
	}

	options, err := h.service.BeginRegistration(r.Context(), session.ID, session.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.respondJSON(w, options)
}

// handleRegisterFinish completes passkey registration.
func (h *Handler) handleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session.UserID == "" {
		h.writeUnauthorized(w)
		return
	}

	cred, err := h.service.FinishRegistration(r.Context(), session.ID, r.Body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.respondJSON(w, map[string]string{"status": "ok", "credentialId": cred.ID})
}

// loginBeginRequest is the optional body of a login/begin call.
type loginBeginRequest struct {
	Username string `json:"username"`
}

// handleLoginBegin starts passkey authentication, scoped to a username if
// one is supplied, discoverable otherwise.
func (h *Handler) handleLoginBegin(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	var req loginBeginRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	}

	options, err := h.service.BeginLogin(r.Context(), session.ID, req.Username)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.respondJSON(w, options)
}

// handleLoginFinish completes passkey authentication.
func (h *Handler) handleLoginFinish(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	user, err := h.service.FinishLogin(r.Context(), session.ID, r.Body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.respondJSON(w, map[string]string{"status": "ok", "username": user.Username})
}

// passwordLoginRequest is the body of a login/password call.
type passwordLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handlePasswordLogin verifies a username/password pair.
func (h *Handler) handlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	var req passwordLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	user, err := h.service.PasswordLogin(r.Context(), session.ID, req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.respondJSON(w, map[string]string{"status": "ok", "username": user.Username})
}

// handleLogout clears the session.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	if err := h.service.Logout(r.Context(), session.ID); err != nil {
		h.logger.Error("failed to delete session", "error", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	h.respondJSON(w, map[string]string{"status": "ok"})
}

// handleMe returns the signed-in user.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session.UserID == "" {
		h.writeUnauthorized(w)
		return
	}

	user, err := h.users.GetUser(r.Context(), session.UserID)
	if err != nil {
		h.writeUnauthorized(w)
		return
	}

	h.respondJSON(w, map[string]string{
		"id":          user.ID,
		"username":    user.Username,
		"displayName": user.DisplayName,
	})
}

// writeServiceError maps a ceremony error to its external response. Every
// verification failure looks identical to the caller; the distinctions live
// in the logs.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidResponse):
		http.Error(w, "invalid request", http.StatusBadRequest)
	case errors.Is(err, ErrNoPendingChallenge),
		errors.Is(err, ErrChallengeExpired),
		errors.Is(err, ErrUnknownCredential),
		errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrAttestationInvalid),
		errors.Is(err, ErrUnknownUser),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrCloneDetected),
		errors.Is(err, ErrCredentialExists):
		h.writeUnauthorized(w)
	default:
		h.logger.Error("authentication request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": "authentication failed"}); err != nil {
		h.logger.Debug("failed to encode response", "error", err)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("failed to encode response", "error", err)
	}
}

// generateSecureToken generates a cryptographically secure random token
func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
