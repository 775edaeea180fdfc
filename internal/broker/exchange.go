package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	pkgerrors "github.com/openlms/admin-session/pkg/errors"
)

// ExchangeClient is the backend's auth surface: assertion exchange, the
// secondary direct credential login, and best-effort token revocation.
type ExchangeClient interface {
	ExchangeAssertion(ctx context.Context, assertion string) (string, error)
	LoginWithCredentials(ctx context.Context, username, password string) (string, error)
	Revoke(ctx context.Context, backendToken string) error
}

// HTTPExchangeClient talks to the backend auth endpoints. Every call runs
// under the client's bounded timeout; a timed-out exchange is an
// ErrExchangeFailed like any other failure.
type HTTPExchangeClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPExchangeClient(baseURL string, timeout time.Duration) *HTTPExchangeClient {
	return &HTTPExchangeClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	Token string `json:"token"`
}

// ExchangeAssertion trades the upstream identity assertion for a backend
// access token via POST /auth/admin-login.
func (c *HTTPExchangeClient) ExchangeAssertion(ctx context.Context, assertion string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/admin-login", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", pkgerrors.ErrExchangeFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+assertion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", pkgerrors.ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: backend returned status %d", pkgerrors.ErrExchangeFailed, resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Token == "" {
		return "", fmt.Errorf("%w: malformed exchange response", pkgerrors.ErrExchangeFailed)
	}
	return body.Token, nil
}

// LoginWithCredentials is the direct username/password path. It bypasses
// the identity provider entirely; the backend does the verification.
func (c *HTTPExchangeClient) LoginWithCredentials(ctx context.Context, username, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", pkgerrors.ErrExchangeFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", pkgerrors.ErrExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", pkgerrors.ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", pkgerrors.ErrInvalidCredentials
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("%w: backend returned status %d", pkgerrors.ErrExchangeFailed, resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Token == "" {
		return "", fmt.Errorf("%w: malformed login response", pkgerrors.ErrExchangeFailed)
	}
	return body.Token, nil
}

// Revoke asks the backend to invalidate the token via POST /auth/logout.
// Callers treat failures as non-fatal.
func (c *HTTPExchangeClient) Revoke(ctx context.Context, backendToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrRevokeFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+backendToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrRevokeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: backend returned status %d", pkgerrors.ErrRevokeFailed, resp.StatusCode)
	}
	return nil
}
