package museumapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Dashboard returns the admin summary.
func (c *Client) Dashboard(ctx context.Context) (*DashboardStats, error) {
	var stats DashboardStats
	if err := c.do(ctx, call{method: http.MethodGet, path: "/admin/dashboard"}, &stats); err != nil {
		return nil, fmt.Errorf("get dashboard: %w", err)
	}
	return &stats, nil
}

// AppointmentsCount returns the total number of appointments.
func (c *Client) AppointmentsCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
		Total int `json:"total"`
	}
	if err := c.do(ctx, call{method: http.MethodGet, path: "/admin/appointments/count"}, &out); err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	if out.Count == 0 {
		return out.Total, nil
	}
	return out.Count, nil
}

// ConfirmAllPending confirms every pending appointment.
func (c *Client) ConfirmAllPending(ctx context.Context) (*ConfirmAllResult, error) {
	var result ConfirmAllResult
	if err := c.do(ctx, call{method: http.MethodPost, path: "/admin/appointments/confirm-all"}, &result); err != nil {
		return nil, fmt.Errorf("confirm pending appointments: %w", err)
	}
	return &result, nil
}

// Health runs the server-side health check.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, call{method: http.MethodGet, path: "/admin/health"}, &h); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return &h, nil
}

func (q UserQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Role != "" {
		v.Set("role", string(q.Role))
	}
	return v
}

// Users lists accounts.
func (c *Client) Users(ctx context.Context, q UserQuery) (*UserPage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, call{method: http.MethodGet, path: "/admin/users", query: q.Values()}, &raw); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	page := &UserPage{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, page); err != nil {
			return nil, fmt.Errorf("list users: decode: %w", err)
		}
		return page, nil
	}
	users, err := decodeList[User](raw)
	if err != nil {
		return nil, fmt.Errorf("list users: decode: %w", err)
	}
	page.Users = users
	return page, nil
}

// CreateUser creates an account.
func (c *Client) CreateUser(ctx context.Context, in UserInput) (*User, error) {
	u, err := c.userCall(ctx, call{method: http.MethodPost, path: "/admin/users", body: in})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// UpdateUser changes an account's email, role or active flag.
func (c *Client) UpdateUser(ctx context.Context, id string, in UserInput) (*User, error) {
	u, err := c.userCall(ctx, call{method: http.MethodPut, path: "/admin/users/" + url.PathEscape(id), body: in})
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if err := c.do(ctx, call{method: http.MethodDelete, path: "/admin/users/" + url.PathEscape(id)}, nil); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (c *Client) userCall(ctx context.Context, in call) (*User, error) {
	var raw json.RawMessage
	if err := c.do(ctx, in, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &User{}, nil
	}
	var wrapped struct {
		User *User `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil {
		return wrapped.User, nil
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// AdminMuseumConfigs lists museum configurations including inactive ones.
func (c *Client) AdminMuseumConfigs(ctx context.Context) ([]MuseumConfig, error) {
	return c.museumConfigs(ctx, "/admin/museum-configs")
}

// CreateMuseumConfig adds a museum configuration.
func (c *Client) CreateMuseumConfig(ctx context.Context, cfg MuseumConfig) (*MuseumConfig, error) {
	out, err := c.configCall(ctx, call{method: http.MethodPost, path: "/admin/museum-configs", body: cfg})
	if err != nil {
		return nil, fmt.Errorf("create museum config: %w", err)
	}
	return out, nil
}

// UpdateMuseumConfig replaces a museum configuration.
func (c *Client) UpdateMuseumConfig(ctx context.Context, id string, cfg MuseumConfig) (*MuseumConfig, error) {
	out, err := c.configCall(ctx, call{method: http.MethodPut, path: "/admin/museum-configs/" + url.PathEscape(id), body: cfg})
	if err != nil {
		return nil, fmt.Errorf("update museum config: %w", err)
	}
	return out, nil
}

func (c *Client) configCall(ctx context.Context, in call) (*MuseumConfig, error) {
	var raw json.RawMessage
	if err := c.do(ctx, in, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &MuseumConfig{}, nil
	}
	var wrapped struct {
		Config *MuseumConfig `json:"config"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Config != nil {
		return wrapped.Config, nil
	}
	var cfg MuseumConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode museum config: %w", err)
	}
	return &cfg, nil
}
