// Package cratesio reads crate download counts from the crates.io API.
package cratesio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultBaseURL   = "https://crates.io"
	DefaultUserAgent = "rxbench (https://github.com/rxbench/rxbench)"
)

// ErrNotFound is returned when crates.io has no crate with the given name.
var ErrNotFound = errors.New("crate not found")

type Client struct {
	BaseURL   string
	UserAgent string
	HTTP      *http.Client
}

// New returns a client for crates.io. A nil httpClient uses
// http.DefaultClient.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: DefaultBaseURL, UserAgent: DefaultUserAgent, HTTP: httpClient}
}

type crateResponse struct {
	Crate struct {
		Name      string `json:"name"`
		Downloads int64  `json:"downloads"`
	} `json:"crate"`
}

// Downloads returns the all-time download count of name.
func (c *Client) Downloads(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("cratesio: empty crate name")
	}

	endpoint := strings.TrimSuffix(c.BaseURL, "/") + "/api/v1/crates/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("cratesio: %w", err)
	}
	// crates.io rejects requests without a descriptive User-Agent.
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("cratesio: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("cratesio: %s: %w", name, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("cratesio: %s: unexpected status %s", name, resp.Status)
	}

	var body crateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("cratesio: decode %s: %w", name, err)
	}
	return body.Crate.Downloads, nil
}
