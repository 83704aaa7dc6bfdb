// Package github implements the identity-provider side of the login
// handshake against the GitHub OAuth endpoints.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flatmaps/internal/platform/config"
	dErrors "flatmaps/pkg/domain-errors"
)

// User is the subset of the GitHub user payload the gate needs.
type User struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Provider exchanges authorization codes for access tokens and resolves
// the authenticated user.
type Provider struct {
	cfg    config.GitHubConfig
	client *http.Client
}

func New(cfg config.GitHubConfig) *Provider {
	return &Provider{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// AuthorizeURL builds the redirect target for the login flow. The state
// nonce binds the callback to the session that started it.
func (p *Provider) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", p.cfg.RedirectURL)
	q.Set("scope", "read:user")
	q.Set("state", state)
	return p.cfg.AuthorizeURL + "?" + q.Encode()
}

// ExchangeCode trades the callback code for an access token.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.RedirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "identity provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf("token exchange rejected with status %d", resp.StatusCode))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "malformed token response")
	}
	if payload.Error != "" || payload.AccessToken == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "authorization code was not accepted")
	}
	return payload.AccessToken, nil
}

// FetchUser resolves the identity behind an access token.
func (p *Provider) FetchUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserAPIURL, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build user request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf("user lookup rejected with status %d", resp.StatusCode))
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "malformed user response")
	}
	if user.Login == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user payload missing login")
	}
	return &user, nil
}
