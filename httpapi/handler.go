package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrEthical07/branchauth"
	"github.com/MrEthical07/branchauth/middleware"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 64 << 10

// Authority is the engine surface the handlers call. *branchauth.Engine
// satisfies it.
type Authority interface {
	middleware.Authenticator
	Login(ctx context.Context, req branchauth.LoginRequest) (*branchauth.LoginResult, error)
	Refresh(ctx context.Context, req branchauth.RefreshRequest) (*branchauth.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	GetActiveSessions(ctx context.Context, userID, currentSessionID string) ([]branchauth.SessionInfo, error)
	GetActiveSessionsCount(ctx context.Context, userID string) (int, error)
	RevokeSession(ctx context.Context, userID, sessionID string) error
	RevokeAllSessions(ctx context.Context, userID string) (int, error)
	RevokeAllSessionsExceptCurrent(ctx context.Context, userID, currentSessionID string) (int, error)
}

// Handler serves the auth routes.
type Handler struct {
	engine Authority
	logger *slog.Logger
}

// NewHandler returns a Handler over engine. A nil logger uses slog.Default().
func NewHandler(engine Authority, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// NewRouter returns a router with every auth route registered.
func NewRouter(engine Authority, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	NewHandler(engine, logger).RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the handlers on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	auth := r.PathPrefix("/auth").Subrouter()
	auth.Use(requestContext)

	auth.HandleFunc("/login", h.login).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)

	guarded := auth.NewRoute().Subrouter()
	guarded.Use(middleware.SessionGuard(h.engine, h.logger))
	guarded.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	guarded.HandleFunc("/me", h.me).Methods(http.MethodGet)
	guarded.HandleFunc("/sessions", h.listSessions).Methods(http.MethodGet)
	guarded.HandleFunc("/sessions/count", h.countSessions).Methods(http.MethodGet)
	// Registered before {sessionID} so "others" is not taken as an id.
	guarded.HandleFunc("/sessions/others", h.revokeOthers).Methods(http.MethodDelete)
	guarded.HandleFunc("/sessions/{sessionID}", h.revokeSession).Methods(http.MethodDelete)
	guarded.HandleFunc("/sessions", h.revokeAll).Methods(http.MethodDelete)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

type refreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	DeviceID     string `json:"device_id"`
}

type meResponse struct {
	UserID     string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email,omitempty"`
	GivenName  string    `json:"given_name,omitempty"`
	FamilyName string    `json:"family_name,omitempty"`
	BranchID   string    `json:"branch_id,omitempty"`
	Roles      []string  `json:"roles,omitempty"`
	SessionID  string    `json:"session_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type countResponse struct {
	Count int `json:"count"`
}

type revokedResponse struct {
	Revoked int `json:"revoked"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decode(w, r, &body) {
		return
	}

	res, err := h.engine.Login(r.Context(), branchauth.LoginRequest{
		Username: body.Username,
		Password: body.Password,
		DeviceID: body.DeviceID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decode(w, r, &body) {
		return
	}
	if body.AccessToken == "" {
		body.AccessToken, _ = middleware.BearerToken(r)
	}

	res, err := h.engine.Refresh(r.Context(), branchauth.RefreshRequest{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		DeviceID:     body.DeviceID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	user := mustUser(w, r)
	if user == nil {
		return
	}
	if err := h.engine.Logout(r.Context(), user.SessionID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user := mustUser(w, r)
	if user == nil {
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:     user.UserID,
		Username:   user.Username,
		Email:      user.Email,
		GivenName:  user.GivenName,
		FamilyName: user.FamilyName,
		BranchID:   user.BranchID,
		Roles:      user.Roles,
		SessionID:  user.SessionID,
		ExpiresAt:  user.ExpiresAt,
	})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	user := mustUser(w, r)
	if user == nil {
		return
	}
	sessions, err := h.engine.GetActiveSessions(r.Context(), user.UserID, user.SessionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) countSessions(w http.ResponseWriter, r *http.Request) {
	user := mustUser(w, r)
	if user == nil {
		return
	}
	n, err := h.engine.GetActiveSessionsCount(r.Context(), user.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	user := mustUser(w, r)
	if user == nil {
		return
	}
	if err := h.engine.RevokeSession(r.Context(), user.UserID, mux.Vars(r)["sessionID"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeAll(w http.ResponseWriter, r *http.Request) {
	user := mustUser(w, r)
	if user == nil {
		return
	}
	n, err := h.engine.RevokeAllSessions(r.Context(), user.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revokedResponse{Revoked: n})
}

func (h *Handler) revokeOthers(w http.ResponseWriter, r *http.Request) {
	user := mustUser(w, r)
	if user == nil {
		return
	}
	n, err := h.engine.RevokeAllSessionsExceptCurrent(r.Context(), user.UserID, user.SessionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revokedResponse{Revoked: n})
}

// fail maps an engine error to a response. Auth failures never reveal
// their cause.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case branchauth.IsUnauthorized(err):
		middleware.Unauthorized(w)
	case errors.Is(err, branchauth.ErrEngineNotReady):
		writeError(w, http.StatusServiceUnavailable, "unavailable")
	default:
		h.logger.Error("branchauth: request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func mustUser(w http.ResponseWriter, r *http.Request) *branchauth.CurrentUser {
	user, ok := middleware.CurrentUserFromContext(r.Context())
	if !ok {
		middleware.Unauthorized(w)
		return nil
	}
	return user
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// requestContext copies the caller address and user agent into the context
// so engine audit records carry them.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ctx := branchauth.WithClientIP(r.Context(), host)
		ctx = branchauth.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
