// Package api is a thin client for the authentication HTTP API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nhle/authnotify/internal/model"
	"github.com/nhle/authnotify/internal/session"
)

// Client calls the auth endpoints under baseURL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API at baseURL
// (e.g., http://localhost:8000).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, password string) (*model.User, error) {
	var user model.User
	body := registerRequest{Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/register", "", body, &user); err != nil {
		return nil, fmt.Errorf("registering %s: %w", email, err)
	}
	return &user, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/login", "", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tok TokenResponse
	if err := c.send(req, &tok); err != nil {
		return nil, fmt.Errorf("logging in %s: %w", email, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("logging in %s: empty access token", email)
	}
	return &tok, nil
}

// Me returns the user owning token.
func (c *Client) Me(ctx context.Context, token string) (*model.User, error) {
	var user model.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", token, nil, &user); err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}
	return &user, nil
}

// ValidateToken checks token against /me. A 401 is reported as
// session.ErrTokenRejected.
func (c *Client) ValidateToken(ctx context.Context, token string) error {
	_, err := c.Me(ctx, token)
	if IsAuthError(err) {
		return fmt.Errorf("%w: %v", session.ErrTokenRejected, err)
	}
	return err
}

// VerifyEmail confirms an address with the token from the verification
// email.
func (c *Client) VerifyEmail(ctx context.Context, token string) (*Result, error) {
	path := "/api/auth/verify-email?token=" + url.QueryEscape(token)
	return c.result(ctx, http.MethodGet, path, nil, "verifying email")
}

// ResendVerification asks the server to send another verification email.
func (c *Client) ResendVerification(ctx context.Context, email string) (*Result, error) {
	return c.result(ctx, http.MethodPost, "/api/auth/resend-verification", emailRequest{Email: email}, "resending verification")
}

// ForgotPassword requests a password reset email.
func (c *Client) ForgotPassword(ctx context.Context, email string) (*Result, error) {
	return c.result(ctx, http.MethodPost, "/api/auth/forgot-password", emailRequest{Email: email}, "requesting password reset")
}

// ResetPassword sets a new password using the token from the reset email.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) (*Result, error) {
	body := resetRequest{Token: token, NewPassword: newPassword}
	return c.result(ctx, http.MethodPost, "/api/auth/reset-password", body, "resetting password")
}

// Ping checks that something answers at the base URL. Any response below
// 500 counts, since the server root only redirects to its docs.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/", "", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reaching %s: %w", c.baseURL, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

func (c *Client) result(ctx context.Context, method, path string, body any, what string) (*Result, error) {
	var res Result
	if err := c.doJSON(ctx, method, path, "", body, &res); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return &res, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, token, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, result)
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(respBody, &er) == nil {
			apiErr.Message = detailMessage(er.Detail)
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshaling response from %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
