package museumapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var result LoginResult
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   Credentials{Email: email, Password: password},
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if result.Token == "" {
		return nil, errors.New("login: response carried no token")
	}
	return &result, nil
}

// Register creates a regular account.
func (c *Client) Register(ctx context.Context, email, password string) (*LoginResult, error) {
	var result LoginResult
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/register",
		body:   Credentials{Email: email, Password: password},
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &result, nil
}

// Profile returns the account behind token. The token is passed explicitly
// so a persisted token can be checked before it is adopted by the session.
func (c *Client) Profile(ctx context.Context, token string) (*User, error) {
	var wrapped struct {
		User *User `json:"user"`
	}
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/auth/profile",
		token:  token,
	}, &wrapped)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if wrapped.User == nil {
		return nil, errors.New("get profile: response carried no user")
	}
	return wrapped.User, nil
}
