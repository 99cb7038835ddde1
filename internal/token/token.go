// Package token registers the device's remote push token with the backend
// REST API. Calls are best-effort: registration failures never block the
// notification flows.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/playbuddy/playbuddy-notify/internal/kv"
)

const (
	tokenPath          = "/push_tokens"
	requestTimeout     = 15 * time.Second
	storedTokenKey     = "remotePushToken"
	defaultContentType = "application/json"
)

// Client talks to the backend push-token endpoint and caches the registered
// token in the kv store so repeat registrations short-circuit.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      kv.Store
	logger     *slog.Logger
}

// NewClient creates a push-token client. baseURL may be empty, in which case
// all calls are no-ops.
func NewClient(baseURL string, store kv.Store, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		store:      store,
		logger:     logger,
	}
}

type tokenPayload struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// Register sends the token to the backend unless it is already the stored
// one. Returns the registered token.
func (c *Client) Register(ctx context.Context, token, platform string) (string, error) {
	if c.baseURL == "" || token == "" {
		return "", nil
	}

	stored, ok, err := c.store.Get(ctx, storedTokenKey)
	if err != nil {
		c.logger.Warn("read stored push token failed", "error", err)
	}
	if ok && stored == token {
		return token, nil
	}

	body, err := json.Marshal(tokenPayload{Token: token, Platform: platform})
	if err != nil {
		return "", fmt.Errorf("encode token payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", defaultContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("register push token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("register push token: backend returned %d", resp.StatusCode)
	}

	if err := c.store.Set(ctx, storedTokenKey, token); err != nil {
		c.logger.Warn("store push token failed", "error", err)
	}
	return token, nil
}

// Unregister deletes the stored token from the backend. The local copy is
// cleared even when the backend call fails.
func (c *Client) Unregister(ctx context.Context) {
	stored, ok, err := c.store.Get(ctx, storedTokenKey)
	if err != nil {
		c.logger.Warn("read stored push token failed", "error", err)
		return
	}
	if !ok || stored == "" {
		return
	}

	if c.baseURL != "" {
		if err := c.deleteToken(ctx, stored); err != nil {
			c.logger.Warn("unregister push token failed", "error", err)
		}
	}
	if err := c.store.Remove(ctx, storedTokenKey); err != nil {
		c.logger.Warn("remove stored push token failed", "error", err)
	}
}

func (c *Client) deleteToken(ctx context.Context, token string) error {
	body, err := json.Marshal(tokenPayload{Token: token})
	if err != nil {
		return fmt.Errorf("encode token payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+tokenPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", defaultContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return nil
}
