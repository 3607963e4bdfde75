// Package apiclient talks to the upstream EcoGrid API. Every read goes
// through the client's own RequestCache.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/auth"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/cache"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 10 << 20
)

// Observer is told about every upstream round trip. status is 0 when no
// response was received.
type Observer func(route string, status int, elapsed time.Duration)

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, for example http://localhost:8080/api.
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
	Cache      *cache.RequestCache
	Observer   Observer
}

// Client is the upstream API collaborator.
type Client struct {
	base     string
	http     *http.Client
	cache    *cache.RequestCache
	creds    *auth.CredentialStore
	session  *auth.Session
	observer Observer
}

// New validates cfg and returns a client. creds and session may be shared
// with the auth service and the stream transport.
func New(cfg Config, creds *auth.CredentialStore, session *auth.Session) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	rc := cfg.Cache
	if rc == nil {
		rc = cache.New()
	}
	if creds == nil {
		creds = auth.NewCredentialStore(nil)
	}
	if session == nil {
		session = auth.NewSession()
	}

	return &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		http:     httpClient,
		cache:    rc,
		creds:    creds,
		session:  session,
		observer: cfg.Observer,
	}, nil
}

// Cache exposes the client's request cache.
func (c *Client) Cache() *cache.RequestCache { return c.cache }

// Do sends a JSON request and decodes a JSON response into out. It bypasses
// the cache and satisfies auth.API.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.roundTrip(ctx, path, method, path, body)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

// roundTrip performs one request and returns the raw response body. A 401
// clears the stored credentials and ends the session.
func (c *Client) roundTrip(ctx context.Context, route, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.creds.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(route, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.observe(route, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	apiErr := &APIError{Status: resp.StatusCode, Method: method, Path: path}
	var eb apiErrorBody
	if json.Unmarshal(raw, &eb) == nil {
		apiErr.Message = eb.Message
		apiErr.Code = eb.Code
	}

	if resp.StatusCode == http.StatusUnauthorized {
		slog.Warn("[APIClient] Upstream rejected credentials", "method", method, "path", path)
		c.creds.Clear()
		c.session.End(auth.ReasonUnauthorized)
	}
	return nil, apiErr
}

func (c *Client) observe(route string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer(route, status, elapsed)
	}
}

func decode(raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

// cachedGet fetches path through the cache and decodes a fresh value for
// every caller, so no caller ever holds a reference into cache-owned state.
// ids name the entity addressed by path and only contribute to the cache
// key; query is sent as the query string and may not repeat an id name.
func cachedGet[T any](ctx context.Context, c *Client, r resource, path string, ids, query map[string]any) (T, error) {
	var out T

	keyParams := make(map[string]any, len(ids)+len(query))
	for k, v := range query {
		keyParams[k] = v
	}
	for k, v := range ids {
		if _, clash := query[k]; clash {
			return out, invalidParamsf("query parameter %q is already set by the path", k)
		}
		keyParams[k] = v
	}
	key := cache.Key(r.name, keyParams)

	if q := encodeQuery(query); len(q) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + q.Encode()
	}

	raw, err := cache.Fetch(ctx, c.cache, key, r.ttl, func(ctx context.Context) ([]byte, error) {
		return c.roundTrip(ctx, r.name, http.MethodGet, path, nil)
	})
	if err != nil {
		return out, err
	}
	if err := decode(raw, &out); err != nil {
		c.cache.Delete(key)
		return out, err
	}
	return out, nil
}

func encodeQuery(params map[string]any) url.Values {
	q := url.Values{}
	for name, v := range params {
		if v == nil {
			continue
		}
		s := fmt.Sprint(v)
		if s == "" {
			continue
		}
		q.Set(name, s)
	}
	return q
}
