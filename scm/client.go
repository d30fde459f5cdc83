// Package scm holds small REST clients for the source-control hosts rlsr
// publishes releases to. Requests are authenticated through an oauth2
// transport carrying a static token.
package scm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/iamd3vil/rlsr/errors"
)

// Config holds what every client needs.
type Config struct {
	// BaseURL is the API root. Each client has its own default.
	BaseURL string

	// Token authenticates every request as a bearer token.
	Token string

	// HTTPClient is the underlying client the oauth2 transport wraps.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type client struct {
	service string
	baseURL string
	http    *http.Client
	headers http.Header
	logger  *slog.Logger
}

func newClient(service string, cfg Config, defaultURL string, headers http.Header) (*client, error) {
	if cfg.Token == "" {
		return nil, errors.Newf(errors.CodeUnauthorized, "%s: no token configured", service)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultURL
	}

	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &client{
		service: service,
		baseURL: baseURL,
		http:    oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})),
		headers: headers,
		logger:  logger.With("service", service),
	}, nil
}

// request describes one API call. Path is relative to the base URL unless
// it is already absolute.
type request struct {
	method      string
	path        string
	json        any
	body        io.Reader
	size        int64
	contentType string
}

func (c *client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + path
}

// do executes r and decodes a JSON response into out when out is non-nil.
// It returns the response headers for pagination.
func (c *client) do(ctx context.Context, r request, out any) (http.Header, error) {
	body := r.body
	contentType := r.contentType
	if r.json != nil {
		encoded, err := json.Marshal(r.json)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding request body: %w", c.service, err)
		}
		body = bytes.NewReader(encoded)
		r.size = int64(len(encoded))
		contentType = "application/json"
	}

	target := c.url(r.path)
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", c.service, err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if body != nil && r.size > 0 {
		req.ContentLength = r.size
	}

	c.logger.Debug("api request", "method", r.method, "url", target)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeNetwork, "%s: %s %s", c.service, r.method, target)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeNetwork, "%s: reading response body", c.service)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(c.service, resp.StatusCode, data)
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("%s: decoding response: %w", c.service, err)
		}
	}
	return resp.Header, nil
}

// collect follows rel="next" links from path and concatenates every page.
func collect[T any](ctx context.Context, c *client, path string) ([]T, error) {
	var all []T
	for next := path; next != ""; {
		var page []T
		header, err := c.do(ctx, request{method: http.MethodGet, path: next}, &page)
		if err != nil {
			return all, err
		}
		all = append(all, page...)
		next = parseLinkNext(header.Get("Link"))
	}
	return all, nil
}

// parseLinkNext extracts the rel="next" URL from an RFC 5988 Link header.
func parseLinkNext(header string) string {
	for _, part := range strings.Split(header, ",") {
		urlPart, relPart, ok := strings.Cut(strings.TrimSpace(part), ";")
		if !ok || !strings.Contains(relPart, `rel="next"`) {
			continue
		}
		urlPart = strings.TrimSpace(urlPart)
		if strings.HasPrefix(urlPart, "<") && strings.HasSuffix(urlPart, ">") {
			return urlPart[1 : len(urlPart)-1]
		}
	}
	return ""
}
