package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/branchauth"
	"github.com/MrEthical07/branchauth/credential"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unauthorizedBody = `{"error":"unauthorized"}`

type apiEnv struct {
	engine *branchauth.Engine
	creds  *credential.MemoryStore
	router *mux.Router
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := branchauth.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	creds := credential.NewMemoryStore()
	engine, err := branchauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(creds).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &apiEnv{
		engine: engine,
		creds:  creds,
		router: NewRouter(engine, logger),
	}
}

func (env *apiEnv) addUser(t *testing.T, id, username, plain string) {
	t.Helper()
	hash, err := env.engine.HashPassword(plain)
	require.NoError(t, err)
	require.NoError(t, env.creds.Save(context.Background(), &credential.Credential{
		ID:           id,
		Username:     username,
		Email:        username + "@example.org",
		PasswordHash: hash,
		BranchID:     "branch-3",
		Active:       true,
		Roles:        []string{"teller"},
	}))
}

func (env *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:51234"
	req.Header.Set("User-Agent", "httpapi-test")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *apiEnv) login(t *testing.T, username, plain string) branchauth.LoginResult {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": plain,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res branchauth.LoginResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func requireUnauthorized(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, unauthorizedBody, strings.TrimSpace(rec.Body.String()))
}

func TestLoginMeAndSessions(t *testing.T) {
	env := newAPIEnv(t)
	env.addUser(t, "u-alice", "alice", "P@ss1")

	res := env.login(t, "alice", "P@ss1")
	assert.Equal(t, "Bearer", res.TokenType)
	assert.EqualValues(t, 900, res.ExpiresIn)
	require.NotNil(t, res.User)
	assert.Equal(t, "u-alice", res.User.ID)
	assert.Equal(t, "branch-3", res.User.BranchID)

	rec := env.do(t, http.MethodGet, "/auth/me", res.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "u-alice", me.UserID)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, []string{"teller"}, me.Roles)
	assert.NotEmpty(t, me.SessionID)

	rec = env.do(t, http.MethodGet, "/auth/sessions", res.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []branchauth.SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Current)
	assert.Equal(t, me.SessionID, sessions[0].SessionID)
	assert.Equal(t, "192.0.2.10", sessions[0].IP)
	assert.Equal(t, "httpapi-test", sessions[0].UserAgent)

	rec = env.do(t, http.MethodGet, "/auth/sessions/count", res.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())
}

func TestLoginFailuresLookIdentical(t *testing.T) {
	env := newAPIEnv(t)
	env.addUser(t, "u-alice", "alice", "P@ss1")

	wrong := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
	unknown := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "mallory", "password": "nope"})
	requireUnauthorized(t, wrong)
	requireUnauthorized(t, unknown)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestLoginLockoutOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	env.addUser(t, "u-bob", "bob", "Right1")

	for i := 0; i < 5; i++ {
		rec := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "wrong"})
		requireUnauthorized(t, rec)
	}
	rec := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "Right1"})
	requireUnauthorized(t, rec)

	require.NoError(t, env.engine.UnlockAccount(context.Background(), "u-bob"))
	env.login(t, "bob", "Right1")
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid request body"}`, rec.Body.String())
}

func TestGuardedRoutesRequireToken(t *testing.T) {
	env := newAPIEnv(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/auth/logout"},
		{http.MethodGet, "/auth/me"},
		{http.MethodGet, "/auth/sessions"},
		{http.MethodGet, "/auth/sessions/count"},
		{http.MethodDelete, "/auth/sessions/others"},
		{http.MethodDelete, "/auth/sessions/abc"},
		{http.MethodDelete, "/auth/sessions"},
	} {
		requireUnauthorized(t, env.do(t, tc.method, tc.path, "", nil))
		requireUnauthorized(t, env.do(t, tc.method, tc.path, "not-a-jwt", nil))
	}
}

func TestRefreshRotationAndReuse(t *testing.T) {
	env := newAPIEnv(t)
	env.addUser(t, "u-alice", "alice", "P@ss1")
	first := env.login(t, "alice", "P@ss1")

	rec := env.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{
		"access_token":  first.AccessToken,
		"refresh_token": first.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second branchauth.LoginResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.NotNil(t, second.User)
	assert.Equal(t, "u-alice", second.User.ID)

	rec = env.do(t, http.MethodGet, "/auth/sessions/count", second.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	// Access token from the Authorization header.
	rec = env.do(t, http.MethodPost, "/auth/refresh", first.AccessToken, map[string]string{
		"refresh_token": first.RefreshToken,
	})
	requireUnauthorized(t, rec)

	// Reuse revoked the whole session, including the rotated pair.
	requireUnauthorized(t, env.do(t, http.MethodGet, "/auth/me", second.AccessToken, nil))
	rec = env.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{
		"access_token":  second.AccessToken,
		"refresh_token": second.RefreshToken,
	})
	requireUnauthorized(t, rec)
}

func TestRefreshReadsAccessTokenLikeGuard(t *testing.T) {
	env := newAPIEnv(t)
	env.addUser(t, "u-alice", "alice", "P@ss1")
	first := env.login(t, "alice", "P@ss1")

	raw, err := json.Marshal(map[string]string{"refresh_token": first.RefreshToken})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "bearer   "+first.AccessToken+" ")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second branchauth.LoginResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestLogoutBlacklistsSession(t *testing.T) {
	env := newAPIEnv(t)
	env.addUser(t, "u-alice", "alice", "P@ss1")
	res := env.login(t, "alice", "P@ss1")

	rec := env.do(t, http.MethodPost, "/auth/logout", res.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	requireUnauthorized(t, env.do(t, http.MethodGet, "/auth/me", res.AccessToken, nil))
	requireUnauthorized(t, env.do(t, http.MethodPost, "/auth/logout", res.AccessToken, nil))
}

func TestRevokeOtherSessions(t *testing.T) {
	env := newAPIEnv(t)
	env.addUser(t, "u-alice", "alice", "P@ss1")
	a := env.login(t, "alice", "P@ss1")
	b := env.login(t, "alice", "P@ss1")
	c := env.login(t, "alice", "P@ss1")

	rec := env.do(t, http.MethodDelete, "/auth/sessions/others", a.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"revoked":2}`, rec.Body.String())

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/auth/me", a.AccessToken, nil).Code)
	requireUnauthorized(t, env.do(t, http.MethodGet, "/auth/me", b.AccessToken, nil))
	requireUnauthorized(t, env.do(t, http.MethodGet, "/auth/me", c.AccessToken, nil))
}

func TestRevokeSingleSessionAndForeignSession(t *testing.T) {
	env := newAPIEnv(t)
	env.addUser(t, "u-alice", "alice", "P@ss1")
	env.addUser(t, "u-carol", "carol", "P@ss2")
	a1 := env.login(t, "alice", "P@ss1")
	a2 := env.login(t, "alice", "P@ss1")
	carol := env.login(t, "carol", "P@ss2")

	rec := env.do(t, http.MethodGet, "/auth/me", carol.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var carolMe meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &carolMe))

	// Foreign session ids are accepted and ignored.
	rec = env.do(t, http.MethodDelete, "/auth/sessions/"+carolMe.SessionID, a1.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/auth/me", carol.AccessToken, nil).Code)

	rec = env.do(t, http.MethodGet, "/auth/sessions", a1.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []branchauth.SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 2)

	var other string
	for _, s := range sessions {
		if !s.Current {
			other = s.SessionID
		}
	}
	require.NotEmpty(t, other)

	rec = env.do(t, http.MethodDelete, "/auth/sessions/"+other, a1.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	requireUnauthorized(t, env.do(t, http.MethodGet, "/auth/me", a2.AccessToken, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/auth/me", a1.AccessToken, nil).Code)
}

func TestRevokeAllSessions(t *testing.T) {
	env := newAPIEnv(t)
	env.addUser(t, "u-alice", "alice", "P@ss1")
	a := env.login(t, "alice", "P@ss1")
	env.login(t, "alice", "P@ss1")

	rec := env.do(t, http.MethodDelete, "/auth/sessions", a.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"revoked":2}`, rec.Body.String())
	requireUnauthorized(t, env.do(t, http.MethodGet, "/auth/me", a.AccessToken, nil))
}

func TestZeroEngineIsUnavailable(t *testing.T) {
	router := NewRouter(&branchauth.Engine{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"a","password":"b"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// The guard fails closed.
	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	requireUnauthorized(t, rec)
}
