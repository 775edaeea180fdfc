package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Session is the upstream identity provider's view of the operator: an
// opaque assertion proving they authenticated there. The assertion is
// exchanged for a backend token, never inspected locally.
type Session struct {
	Assertion string `json:"identity_token"`
}

// Source supplies the current upstream session. A nil session with a nil
// error means nobody is signed in at the provider, which is an expected
// state, not a failure.
type Source interface {
	CurrentSession(ctx context.Context) (*Session, error)
	EndSession(ctx context.Context) error
}

// HTTPSource reads the session from the identity provider's session
// endpoint using the operator's provider credential.
type HTTPSource struct {
	baseURL    string
	credential string
	client     *http.Client
}

func NewHTTPSource(baseURL, credential string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL:    baseURL,
		credential: credential,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) CurrentSession(ctx context.Context) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/session", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.credential)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound:
		// Signed out at the provider.
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("malformed identity provider response: %w", err)
	}
	return &sess, nil
}

func (s *HTTPSource) EndSession(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/v1/session", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.credential)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("identity provider sign-out returned non-2xx", "status", resp.StatusCode)
	}
	return nil
}
