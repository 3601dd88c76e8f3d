package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawhub/pawhub/internal/auth"
	"github.com/pawhub/pawhub/internal/platform/httpx"
)

func newTestRouter(env *testEnv, limit auth.RateLimit) http.Handler {
	r := chi.NewRouter()
	handler := auth.NewHandler(nil, env.svc, limit)
	r.Route("/auth", handler.MountRoutes)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

const registerBody = `{"email":"a@x.com","username":"alice","password":"Secr3t!","firstName":"Alice","lastName":"Liddell","termsAccepted":true}`

func TestHandlerRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, auth.RateLimit{Requests: 100, Window: time.Minute})

	rr := doJSON(t, router, http.MethodPost, "/auth/register", registerBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])
	assert.Equal(t, "Bearer", body["tokenType"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "a@x.com", user["email"])
	assert.NotContains(t, user, "passwordHash")
	assert.NotContains(t, rr.Body.String(), "$2a$")

	rr = doJSON(t, router, http.MethodPost, "/auth/register", registerBody)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"Secr3t!"}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandlerRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, auth.RateLimit{})

	rr := doJSON(t, router, http.MethodPost, "/auth/register", `{"email":"not-an-email","username":"al","password":"x","role":"admin"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "must be a valid email address", problem.Errors["email"])
	assert.Contains(t, problem.Errors, "username")
	assert.Contains(t, problem.Errors, "password")
	assert.Equal(t, "must be one of: owner provider", problem.Errors["role"])

	rr = doJSON(t, router, http.MethodPost, "/auth/register", `{"email":"a@x.com","unexpected":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/auth/register", strings.Replace(registerBody, `"termsAccepted":true`, `"termsAccepted":false`, 1))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "terms must be accepted")
}

func TestHandlerRefreshAndLogout(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, auth.RateLimit{})
	result := env.register(t, aliceInput())

	rr := doJSON(t, router, http.MethodPost, "/auth/refresh", `{"refreshToken":"`+result.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pair))
	assert.NotEmpty(t, pair.RefreshToken)

	rr = doJSON(t, router, http.MethodPost, "/auth/refresh", `{"refreshToken":"`+result.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "rotated token is rejected")

	rr = doJSON(t, router, http.MethodPost, "/auth/logout", ``)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))

	rr = doJSON(t, router, http.MethodPost, "/auth/logout", ``, "Authorization", "Bearer "+pair.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "refresh tokens are not access tokens")

	rr = doJSON(t, router, http.MethodPost, "/auth/logout", ``, "Authorization", "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/auth/refresh", `{"refreshToken":"`+pair.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "logout revokes the session")
}

func TestHandlerPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, auth.RateLimit{})
	env.register(t, aliceInput())

	known := doJSON(t, router, http.MethodPost, "/auth/forgot-password", `{"email":"a@x.com"}`)
	unknown := doJSON(t, router, http.MethodPost, "/auth/forgot-password", `{"email":"nobody@x.com"}`)
	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	env.svc.Wait()

	token := env.mailer.last(t, "reset").token
	rr := doJSON(t, router, http.MethodPost, "/auth/reset-password", `{"token":"`+token+`","newPassword":"N3wpass!"}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/auth/reset-password", `{"token":"`+token+`","newPassword":"Other1!"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"N3wpass!"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerVerifyEmailByLink(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, auth.RateLimit{})
	env.register(t, aliceInput())
	token := env.mailer.last(t, "verification").token

	rr := doJSON(t, router, http.MethodGet, "/auth/verify-email", ``)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/auth/verify-email?token="+token, ``)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Message string          `json:"message"`
		User    auth.PublicUser `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "email verified", body.Message)
	assert.True(t, body.User.IsEmailVerified)

	rr = doJSON(t, router, http.MethodPost, "/auth/resend-verification", `{"email":"a@x.com"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "email already verified")
}

func TestHandlerRateLimit(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, auth.RateLimit{Requests: 2, Window: time.Minute})

	for i := 0; i < 2; i++ {
		rr := doJSON(t, router, http.MethodPost, "/auth/forgot-password", `{"email":"a@x.com"}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := doJSON(t, router, http.MethodPost, "/auth/forgot-password", `{"email":"a@x.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"Secr3t!"}`)
	assert.NotEqual(t, http.StatusTooManyRequests, rr.Code, "limits are tracked per endpoint")
}
