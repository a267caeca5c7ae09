/*
Package backend is the HTTP client for the approvals REST backend.

PURPOSE:
  Every read and every state transition the desk performs goes through this
  client. The backend is authoritative: the desk never writes requests,
  users or approvers anywhere else.

AUTH:
  Requests carry "Authorization: Bearer <token>". The token is taken from
  the context (WithToken) so the caller's own token is forwarded; the
  configured service token is used when the context has none.

ERRORS:
  Non-2xx responses become *HTTPError. A 404 also matches
  approval.ErrNotFound with errors.Is.

LISTS:
  List endpoints answer either a bare array or a paginated envelope; see
  list.go.
*/
package backend

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

	"github.com/warp/approval-desk/approval"
)

const (
	DefaultTimeout = 15 * time.Second

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 4 << 10
)

// =============================================================================
// TOKEN PROPAGATION
// =============================================================================

type tokenKey struct{}

// WithToken returns a context whose backend calls use token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the token stored by WithToken.
func TokenFrom(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey{}).(string)
	return t, ok && t != ""
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrForeignLink is returned when a "next" link points off the backend.
var ErrForeignLink = errors.New("pagination link leaves the backend")

// HTTPError is a non-2xx answer from the backend.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Is lets errors.Is(err, approval.ErrNotFound) match a 404.
func (e *HTTPError) Is(target error) bool {
	return target == approval.ErrNotFound && e.Status == http.StatusNotFound
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// =============================================================================
// CLIENT
// =============================================================================

type Client struct {
	BaseURL string
	HTTP    *http.Client

	// Token is used when the context carries none.
	Token string

	// MaxPages bounds how many "next" links a list call follows.
	MaxPages int
}

// NewClient creates a client for baseURL, e.g. "http://localhost:8000/api".
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: timeout},
		Token:    token,
		MaxPages: DefaultMaxPages,
	}
}

// url joins path (and query) onto BaseURL.
func (c *Client) url(path string, query url.Values) string {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// nextURL resolves a pagination link against BaseURL. Links that leave the
// backend's scheme and host are refused so the bearer token stays with it.
func (c *Client) nextURL(link string) (string, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse next link %q: %w", link, err)
	}
	u := base.ResolveReference(ref)
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return "", fmt.Errorf("%w: %s", ErrForeignLink, u.Redacted())
	}
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, rawURL, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, rawURL, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := TokenFrom(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, rawURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		path := req.URL.Path
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &HTTPError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}
	return data, nil
}

// get decodes a JSON object response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	data, err := c.do(ctx, http.MethodGet, c.url(path, query), nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// post sends body and, when out is non-nil, decodes the response into it.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := c.do(ctx, http.MethodPost, c.url(path, nil), body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, c.url(path, nil), nil)
	return err
}
