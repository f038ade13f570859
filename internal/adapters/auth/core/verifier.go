// Package core verifica tokens contra el backend principal de la finca,
// que es quien emite las sesiones. Este servicio solo consume claims.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finca-activity/internal/platform/httpclient"
	"finca-activity/internal/ports/auth"
)

var (
	ErrNotConfigured = errors.New("core auth client not configured")
	ErrTokenEmpty    = errors.New("token is empty")
)

// Config del verificador. BaseURL y APIKey normalmente vienen de env vars
// (AUTH_BASE_URL, AUTH_API_KEY) en quien lo instancia.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Verifier implementa auth.AuthVerifier contra el endpoint de verificación
// del backend principal.
type Verifier struct {
	client *httpclient.Client
	apiKey string
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	c, err := httpclient.NewWithBaseURL(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Verifier{client: c, apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	TenantID string `json:"tenant_id"`
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	if v == nil || v.client == nil {
		return auth.Claims{}, ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrTokenEmpty
	}

	headers := map[string]string{}
	if v.apiKey != "" {
		headers["X-Api-Key"] = v.apiKey
	}

	var resp verifyResponse
	if err := v.client.DoJSON(ctx, "POST", "/auth/verify", headers, verifyRequest{Token: token}, &resp); err != nil {
		// El middleware decide si corta o no; acá solo normalizamos.
		return auth.Claims{}, fmt.Errorf("core auth verify failed: %w", err)
	}

	resp.UserID = strings.TrimSpace(resp.UserID)
	if resp.UserID == "" {
		return auth.Claims{}, errors.New("core auth claims missing user id")
	}

	return auth.Claims{
		UserID:   resp.UserID,
		Email:    resp.Email,
		TenantID: resp.TenantID,
	}, nil
}
