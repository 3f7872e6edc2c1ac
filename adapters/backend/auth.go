package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/layer-3/stindem/core"
)

// RequestNonce asks the backend for a single-use nonce bound to address
func (c *Client) RequestNonce(ctx context.Context, address string) (string, error) {
	var resp struct {
		Nonce string `json:"nonce"`
	}
	if err := c.send(ctx, http.MethodPost, "/auth/request-nonce", map[string]string{"walletAddress": address}, &resp, false); err != nil {
		return "", err
	}
	if resp.Nonce == "" {
		return "", errors.New("backend returned an empty nonce")
	}
	return resp.Nonce, nil
}

// VerifySignature submits a signed nonce. Any non-2xx answer is a VerificationError.
func (c *Client) VerifySignature(ctx context.Context, proof core.SignatureProof) (*core.AuthenticatedUser, error) {
	var resp tokenResponse
	err := c.send(ctx, http.MethodPost, "/auth/verify-signature", proof, &resp, false)
	var se *StatusError
	if errors.As(err, &se) {
		return nil, &core.VerificationError{Address: proof.Address, Status: se.Status, Message: se.Message}
	}
	if err != nil {
		return nil, err
	}
	if resp.User == nil || resp.AccessToken == "" {
		return nil, &core.VerificationError{Address: proof.Address, Status: http.StatusOK, Message: "response carried no session"}
	}

	c.setTokens(resp)
	return resp.User, nil
}

// LoginEmail authenticates with email and password
func (c *Client) LoginEmail(ctx context.Context, email, password string) (*core.AuthenticatedUser, error) {
	var resp tokenResponse
	err := c.send(ctx, http.MethodPost, "/auth/login/email", map[string]string{"email": email, "password": password}, &resp, false)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusUnauthorized {
		return nil, core.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, fmt.Errorf("login response carried no user")
	}

	c.setTokens(resp)
	return resp.User, nil
}

// Me returns the identity behind the current session
func (c *Client) Me(ctx context.Context) (*core.AuthenticatedUser, error) {
	var resp struct {
		User *core.AuthenticatedUser `json:"user"`
	}
	err := c.send(ctx, http.MethodGet, "/auth/me", nil, &resp, true)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusUnauthorized {
		return nil, core.ErrNotAuthenticated
	}
	if err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, core.ErrNotAuthenticated
	}
	return resp.User, nil
}

// Logout revokes the refresh token. Local tokens are dropped even if the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	defer c.clearTokens()

	if refresh == "" {
		return nil
	}
	return c.send(ctx, http.MethodPost, "/auth/logout", map[string]string{"refresh_token": refresh}, nil, false)
}

// RegisterEmail creates an email account; it does not log in
func (c *Client) RegisterEmail(ctx context.Context, email, password, name string) (*core.AuthenticatedUser, error) {
	var resp struct {
		User *core.AuthenticatedUser `json:"user"`
	}
	body := map[string]string{"email": email, "password": password, "name": name}
	err := c.send(ctx, http.MethodPost, "/auth/register/email", body, &resp, false)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusConflict {
		return nil, core.ErrAlreadyExists
	}
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}
