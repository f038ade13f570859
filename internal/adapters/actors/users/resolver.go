package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finca-activity/internal/platform/httpclient"
	"finca-activity/internal/ports/actors"
)

var ErrNotConfigured = errors.New("users resolver not configured")

// Config del cliente contra el servicio de usuarios.
// BaseURL normalmente viene de env en quien lo instancia.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Resolver implementa actors.Resolver llamando al servicio de usuarios por
// HTTP.
type Resolver struct {
	client *httpclient.Client
}

func NewResolver(cfg Config) (*Resolver, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	c, err := httpclient.NewWithBaseURL(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Resolver{client: c}, nil
}

type userResponse struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

func (r *Resolver) Summarize(ctx context.Context, id int64) (actors.Summary, error) {
	if r == nil || r.client == nil {
		return actors.Summary{}, ErrNotConfigured
	}

	var u userResponse
	if err := r.client.DoJSON(ctx, "GET", fmt.Sprintf("/users/%d", id), nil, nil, &u); err != nil {
		return actors.Summary{}, fmt.Errorf("users: summarize %d: %w", id, err)
	}

	return actors.Summary{ID: u.ID, Name: u.FullName, Role: u.Role}, nil
}
