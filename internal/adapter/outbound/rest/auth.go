package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/storefront-dev/storefront/internal/domain/apierr"
	"github.com/storefront-dev/storefront/internal/domain/session"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

// wireID accepts an identifier sent as a JSON number or string.
type wireID string

func (w *wireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*w = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*w = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*w = wireID(n.String())
	return nil
}

// userOut is the backend's user record.
type userOut struct {
	ID        wireID `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

func (u userOut) identity() *session.Identity {
	return &session.Identity{
		ID:          string(u.ID),
		Email:       u.Email,
		DisplayName: u.FullName,
		Role:        session.ParseRole(u.Role),
		CreatedAt:   u.CreatedAt,
	}
}

// Login exchanges a username and password for a bearer credential.
// The request is always anonymous.
func (c *Client) Login(ctx context.Context, username, password string) (*outbound.Token, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var token outbound.Token
	err := c.do(ctx, call{
		op:        "login",
		fallback:  "Login failed. Please check your credentials.",
		method:    http.MethodPost,
		path:      "/auth/login",
		form:      form,
		anonymous: true,
	}, &token)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, &apierr.Error{
			Kind:   apierr.KindServer,
			Op:     "login",
			Status: http.StatusOK,
			Detail: "Login response did not include an access token.",
		}
	}
	return &token, nil
}

// Me resolves the identity behind credential. A 401 here is returned to the
// caller and never reaches the UnauthorizedHandler.
func (c *Client) Me(ctx context.Context, credential string) (*session.Identity, error) {
	var user userOut
	err := c.do(ctx, call{
		op:         "fetch identity",
		fallback:   "Could not verify session.",
		method:     http.MethodGet,
		path:       "/users/me",
		credential: &credential,
	}, &user)
	if err != nil {
		return nil, err
	}
	if user.ID == "" && user.Email == "" {
		return nil, &apierr.Error{
			Kind:   apierr.KindServer,
			Op:     "fetch identity",
			Status: http.StatusOK,
			Detail: "Could not verify session.",
		}
	}
	return user.identity(), nil
}

// Signup creates a user account.
func (c *Client) Signup(ctx context.Context, req session.SignupRequest) (*session.Identity, error) {
	var user userOut
	err := c.do(ctx, call{
		op:        "signup",
		fallback:  "Signup failed.",
		method:    http.MethodPost,
		path:      "/auth/signup",
		json:      req,
		anonymous: true,
	}, &user)
	if err != nil {
		return nil, err
	}
	return user.identity(), nil
}
