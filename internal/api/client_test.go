package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/authnotify/internal/session"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

func TestLogin(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") != "a@x.com" || r.PostForm.Get("password") != "secret123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Incorrect email or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"abc","token_type":"bearer"}`))
	})

	tok, err := c.Login(context.Background(), "a@x.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)

	_, err = c.Login(context.Background(), "a@x.com", "wrong")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Contains(t, err.Error(), "Incorrect email or password")
}

func TestRegister(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["email"] == "taken@x.com" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"Email already registered"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7,"email":"` + body["email"] + `","created_at":"2024-03-01T12:00:00Z","is_verified":false}`))
	})

	user, err := c.Register(context.Background(), "new@x.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, 7, user.ID)
	assert.Equal(t, "new@x.com", user.Email)
	assert.False(t, user.IsVerified)

	_, err = c.Register(context.Background(), "taken@x.com", "password1")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Email already registered", apiErr.Message)
	assert.False(t, IsAuthError(err))
}

func TestValidationErrorDetail(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"msg":"value is not a valid email address"},{"msg":"too short"}]}`))
	})

	_, err := c.Register(context.Background(), "bad", "x")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "value is not a valid email address; too short", apiErr.Message)
}

func TestMeAndValidateToken(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":1,"email":"a@x.com","created_at":"2024-03-01T12:00:00Z","is_verified":true}`))
	})

	user, err := c.Me(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)
	assert.True(t, user.IsVerified)

	assert.NoError(t, c.ValidateToken(context.Background(), "good"))
	assert.ErrorIs(t, c.ValidateToken(context.Background(), "bad"), session.ErrTokenRejected)
}

func TestValidateToken_TransientError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.ValidateToken(context.Background(), "tok")
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrTokenRejected)
}

func TestResultEndpoints(t *testing.T) {
	var paths []string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		_, _ = w.Write([]byte(`{"success":true,"message":"ok"}`))
	})
	ctx := context.Background()

	res, err := c.VerifyEmail(ctx, "a/b")
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = c.ResendVerification(ctx, "a@x.com")
	require.NoError(t, err)
	_, err = c.ForgotPassword(ctx, "a@x.com")
	require.NoError(t, err)
	res, err = c.ResetPassword(ctx, "tok", "newpass123")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Message)

	assert.Equal(t, []string{
		"/api/auth/verify-email?token=a%2Fb",
		"/api/auth/resend-verification",
		"/api/auth/forgot-password",
		"/api/auth/reset-password",
	}, paths)
}

func TestPing(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusTemporaryRedirect)
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/docs" {
			w.WriteHeader(http.StatusOK)
			return
		}
		assert.Equal(t, "/", r.URL.Path)
		code := int(status.Load())
		if code == http.StatusTemporaryRedirect {
			http.Redirect(w, r, "/docs", code)
			return
		}
		w.WriteHeader(code)
	})

	require.NoError(t, c.Ping(context.Background()))

	status.Store(http.StatusBadGateway)
	err := c.Ping(context.Background())
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)

	dead := NewClient("http://127.0.0.1:1", time.Second)
	assert.Error(t, dead.Ping(context.Background()))
}
