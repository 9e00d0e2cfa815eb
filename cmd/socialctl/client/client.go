package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	echoapi "github.com/pilab-dev/shadow-social/api/echo"
	sociallog "github.com/pilab-dev/shadow-social/log"
	"github.com/pilab-dev/shadow-social/services"
)

// ErrTokenRequired is returned when no admin token is configured.
var ErrTokenRequired = errors.New("admin token is required")

// APIError is a failed admin API call.
type APIError struct {
	StatusCode int
	echoapi.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Description, e.StatusCode)
}

// AdminClient talks to /sso/admin/providers of a running server.
type AdminClient struct {
	endpoint string
	token    string
	http     *retryablehttp.Client
}

// NewAdminClient returns a client for the server at endpoint.
func NewAdminClient(endpoint, token string, timeout time.Duration) (*AdminClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("invalid server endpoint")
	}
	if token == "" {
		return nil, ErrTokenRequired
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 2
	httpClient.HTTPClient.Timeout = timeout
	httpClient.Logger = sociallog.NewLeveledLogger("socialctl")

	return &AdminClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		http:     httpClient,
	}, nil
}

func (c *AdminClient) ListProviders(ctx context.Context) ([]echoapi.ProviderResponse, error) {
	var out []echoapi.ProviderResponse
	return out, c.do(ctx, http.MethodGet, "", nil, &out)
}

func (c *AdminClient) GetProvider(ctx context.Context, providerID string) (*echoapi.ProviderResponse, error) {
	var out echoapi.ProviderResponse
	if err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(providerID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveProvider replaces the configuration of providerID with attrs.
func (c *AdminClient) SaveProvider(ctx context.Context, providerID string, attrs map[string]string) (*echoapi.ProviderResponse, error) {
	var out echoapi.ProviderResponse
	body := echoapi.SaveProviderRequest{Attributes: attrs}
	if err := c.do(ctx, http.MethodPut, "/"+url.PathEscape(providerID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) DeleteProvider(ctx context.Context, providerID string) error {
	return c.do(ctx, http.MethodDelete, "/"+url.PathEscape(providerID), nil, nil)
}

func (c *AdminClient) ProviderAttributes(ctx context.Context, providerID string) (*services.ProviderAttributes, error) {
	var out services.ProviderAttributes
	if err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(providerID)+"/attributes", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.endpoint+"/sso/admin/providers"+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.ErrorResponse); err != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
