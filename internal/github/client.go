package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
)

type Client struct {
	Client *github.Client
	HTTP   *http.Client
}

type options struct {
	logger  *slog.Logger
	baseURL string
	timeout time.Duration
}

type Option func(*options)

// WithLogger enables one debug record per request and response.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = u
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// loggingRoundTripper wraps an underlying transport and emits one record per
// request and response (including latency).
type loggingRoundTripper struct {
	base    http.RoundTripper
	logger  *slog.Logger
	service string
}

// NewLoggingTransport wraps base (http.DefaultTransport when nil) so every
// round trip is logged at debug level under the given service name.
func NewLoggingTransport(base http.RoundTripper, logger *slog.Logger, service string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		return base
	}
	return &loggingRoundTripper{base: base, logger: logger, service: service}
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.logger.Debug("http request", "service", t.service, "method", req.Method, "url", req.URL.String())
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		t.logger.Debug("http error", "service", t.service, "elapsed", dur, "err", err)
	} else {
		t.logger.Debug("http response", "service", t.service, "status", resp.StatusCode, "elapsed", dur)
	}
	return resp, err
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}

	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}

	transport := NewLoggingTransport(http.DefaultTransport, o.logger, "github")
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	// Always provide an http.Client so logging works even without a token.
	tc := &http.Client{Transport: transport, Timeout: o.timeout}

	gc := github.NewClient(tc)
	if o.baseURL != "" {
		base := o.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github client: invalid base url %q: %w", o.baseURL, err)
		}
		gc.BaseURL = u
		gc.UploadURL = u
	}

	return &Client{
		Client: gc,
		HTTP:   tc,
	}, nil
}

// Stars returns the stargazer count of owner/repo.
func (c *Client) Stars(ctx context.Context, owner, repo string) (int, *github.Response, error) {
	r, resp, err := c.Client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return 0, resp, err
	}
	return r.GetStargazersCount(), resp, nil
}

// ParseRepoURL extracts owner and repository from a github.com URL in
// https, ssh or scp-like form. ok is false for other hosts.
func ParseRepoURL(raw string) (owner, repo string, ok bool) {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "git@github.com:"):
		s = strings.TrimPrefix(s, "git@github.com:")
	default:
		if !strings.Contains(s, "://") {
			s = "https://" + s
		}
		u, err := url.Parse(s)
		if err != nil || !strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), "github.com") {
			return "", "", false
		}
		s = u.Path
	}
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}
