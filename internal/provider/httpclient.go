package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"warden.org/internal/obs"
)

const defaultTimeout = 5 * time.Second

// HTTPClient implements Client against the provider's admin REST API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// HTTPOption configures optional HTTPClient settings.
type HTTPOption func(*HTTPClient)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient substitutes the underlying HTTP client. Intended for tests.
func WithHTTPClient(h *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if h != nil {
			c.client = h
		}
	}
}

// NewHTTPClient builds a Client for the admin API rooted at baseURL.
// The service account token authenticates every call.
func NewHTTPClient(baseURL, token string, opts ...HTTPOption) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("provider base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("provider base URL: %w", err)
	}
	c := &HTTPClient{
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GroupMemberships implements Client.
func (c *HTTPClient) GroupMemberships(ctx context.Context, providerUserID string) ([]Membership, error) {
	providerUserID = strings.TrimSpace(providerUserID)
	if providerUserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrNotFound)
	}
	var memberships []Membership
	err := c.getJSON(ctx, "group_memberships",
		fmt.Sprintf("/users/%s/groups", url.PathEscape(providerUserID)), &memberships)
	if err != nil {
		return nil, err
	}
	return memberships, nil
}

// User implements Client.
func (c *HTTPClient) User(ctx context.Context, providerUserID string) (UserRepresentation, error) {
	providerUserID = strings.TrimSpace(providerUserID)
	if providerUserID == "" {
		return UserRepresentation{}, fmt.Errorf("%w: user id is required", ErrNotFound)
	}
	var wire struct {
		UserRepresentation
		Attributes map[string][]string `json:"attributes"`
	}
	err := c.getJSON(ctx, "user",
		fmt.Sprintf("/users/%s", url.PathEscape(providerUserID)), &wire)
	if err != nil {
		return UserRepresentation{}, err
	}
	repr := wire.UserRepresentation
	if len(wire.Attributes) > 0 {
		repr.Attributes = make(map[string]string, len(wire.Attributes))
		for k, vs := range wire.Attributes {
			if len(vs) > 0 {
				repr.Attributes[k] = vs[0]
			}
		}
	}
	return repr, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		obs.ObserveProviderRequest(op, "unavailable")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		obs.ObserveProviderRequest(op, "not_found")
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		obs.ObserveProviderRequest(op, "error")
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		obs.ObserveProviderRequest(op, "error")
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		obs.ObserveProviderRequest(op, "error")
		return fmt.Errorf("%w: decode body: %v", ErrUnavailable, err)
	}
	obs.ObserveProviderRequest(op, "ok")
	return nil
}
