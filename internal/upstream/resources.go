package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"tunneldeck-console/internal/models"
)

// Login exchanges credentials for a bearer token. The backend expects a
// form-encoded body and answers with access_token/token_type/expires_in.
func (c *Client) Login(ctx context.Context, username, password string) (*models.TokenResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var token models.TokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/login",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &token)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// Me fetches the account record for the current token
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.getJSON(ctx, "/auth/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword changes the current account's password. The token is not
// rotated by the backend on success.
func (c *Client) ChangePassword(ctx context.Context, current, newPassword string) error {
	return c.postJSON(ctx, "/auth/change-password", models.ChangePasswordRequest{
		CurrentPassword: current,
		NewPassword:     newPassword,
	}, nil)
}

// Health checks backend liveness. Unauthenticated; attempted regardless of
// session state.
func (c *Client) Health(ctx context.Context) (*models.Health, error) {
	var health models.Health
	if err := c.getJSON(ctx, "/", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// ListServices returns the managed proxy services and their status
func (c *Client) ListServices(ctx context.Context) ([]models.Service, error) {
	var services []models.Service
	if err := c.getJSON(ctx, "/services", &services); err != nil {
		return nil, err
	}
	return services, nil
}

// ServiceAction starts, stops, or restarts a service
func (c *Client) ServiceAction(ctx context.Context, name, action string) error {
	path := fmt.Sprintf("/services/%s/%s", url.PathEscape(name), url.PathEscape(action))
	return c.postJSON(ctx, path, nil, nil)
}

// TailLog fetches log lines after offset
func (c *Client) TailLog(ctx context.Context, offset int64) (*models.LogChunk, error) {
	var chunk models.LogChunk
	path := fmt.Sprintf("/logs/tail?offset=%d", offset)
	if err := c.getJSON(ctx, path, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// ListConfigFiles lists configuration files on the backend host
func (c *Client) ListConfigFiles(ctx context.Context) ([]models.ConfigFile, error) {
	var files []models.ConfigFile
	if err := c.getJSON(ctx, "/configs", &files); err != nil {
		return nil, err
	}
	return files, nil
}

// GetConfigFile fetches one configuration file's contents
func (c *Client) GetConfigFile(ctx context.Context, name string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	if err := c.getJSON(ctx, "/configs/"+url.PathEscape(name), &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// ListTunnelUsers returns the per-user VMess tunnel configurations
func (c *Client) ListTunnelUsers(ctx context.Context) ([]models.TunnelUser, error) {
	var users []models.TunnelUser
	if err := c.getJSON(ctx, "/tunnel-users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateTunnelUser adds a VMess tunnel user
func (c *Client) CreateTunnelUser(ctx context.Context, user models.TunnelUser) (*models.TunnelUser, error) {
	var created models.TunnelUser
	if err := c.postJSON(ctx, "/tunnel-users", user, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteTunnelUser removes a VMess tunnel user by email
func (c *Client) DeleteTunnelUser(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodDelete, "/tunnel-users/"+url.PathEscape(email), "", nil, nil)
}

// ListUsers returns the backend accounts
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.getJSON(ctx, "/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser creates a backend account
func (c *Client) CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	var user models.User
	if err := c.postJSON(ctx, "/users", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser updates a backend account
func (c *Client) UpdateUser(ctx context.Context, id int64, req models.UpdateUserRequest) (*models.User, error) {
	var user models.User
	if err := c.postJSON(ctx, fmt.Sprintf("/users/%d", id), req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes a backend account
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/users/%d", id), "", nil, nil)
}
