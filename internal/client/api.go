package client

import (
	"context"
	"net/http"

	domain "bandsched/backend/internal/domain/auth"
)

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User  *domain.PublicUser `json:"user"`
	Token string             `json:"token"`
}

// AuthAPI is the backend auth surface the session drives.
type AuthAPI interface {
	Login(ctx context.Context, creds domain.Credentials) (*AuthResponse, error)
	Register(ctx context.Context, reg domain.Registration) (*AuthResponse, error)
	Me(ctx context.Context) (*domain.PublicUser, error)
}

type httpAuthAPI struct {
	c *Client
}

// NewAuthAPI exposes the auth endpoints over c.
func NewAuthAPI(c *Client) AuthAPI {
	return &httpAuthAPI{c: c}
}

func (a *httpAuthAPI) Login(ctx context.Context, creds domain.Credentials) (*AuthResponse, error) {
	var out AuthResponse
	if err := a.c.Do(ctx, http.MethodPost, "/auth/login", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *httpAuthAPI) Register(ctx context.Context, reg domain.Registration) (*AuthResponse, error) {
	var out AuthResponse
	if err := a.c.Do(ctx, http.MethodPost, "/auth/register", reg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *httpAuthAPI) Me(ctx context.Context) (*domain.PublicUser, error) {
	var out struct {
		User *domain.PublicUser `json:"user"`
	}
	if err := a.c.Do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}
