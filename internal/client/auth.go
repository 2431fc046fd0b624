package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/apivet/apivet/internal/model"
)

// loginRequest is the JSON body sent to the admin login endpoint.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates against the backend's admin login endpoint and
// stores the returned bearer token for subsequent requests.
//
// The endpoint contract: POST {username, password} returns 200 with
// {"success": true, "<tokenField>": "<jwt>"}. Anything else is a login
// failure, which is terminal for a suite run since every protected
// endpoint would 401 without the token.
func (c *Client) Login(ctx context.Context, loginPath, username, password, tokenField string) (*model.AuthInfo, error) {
	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, loginPath, string(body), nil, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	info := &model.AuthInfo{LoginStatus: resp.StatusCode}

	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return info, fmt.Errorf("%w: malformed response: %v", ErrLoginFailed, err)
	}

	// A 200 with success=false still means rejected credentials
	if success, ok := payload["success"].(bool); ok && !success {
		return info, fmt.Errorf("%w: backend reported success=false", ErrLoginFailed)
	}

	token, ok := payload[tokenField].(string)
	if !ok || token == "" {
		return info, fmt.Errorf("%w: field %q missing or empty", ErrNoToken, tokenField)
	}

	c.token = token
	info.TokenAcquired = true
	inspectToken(token, info)

	return info, nil
}

// inspectToken extracts display claims from a JWT without verifying it.
// The probe has no signing key and does not need one: the claims are
// diagnostic metadata (is the token about to expire, who is it for),
// never an authentication decision. Non-JWT tokens are left alone.
func inspectToken(token string, info *model.AuthInfo) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return
	}

	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
}

// TokenExpiresWithin reports whether the token obtained by Login expires
// within d. Returns false when no expiry is known.
func TokenExpiresWithin(info *model.AuthInfo, d time.Duration) bool {
	if info == nil || info.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(info.ExpiresAt) < d
}
