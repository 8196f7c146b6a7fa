// Package farmapi is the HTTP client for the farm server: the REST surface
// under /api, the replication surface under /sync, and the health probe.
package farmapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/domain/models"
)

// DefaultTimeout bounds a single call when the caller does not configure one.
const DefaultTimeout = 15 * time.Second

// ErrDenied is returned when the server rejects the credentials (401 or 403).
var ErrDenied = errors.New("access denied")

// HTTPError is a response with an error status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &payload) == nil && payload.Error != "" {
		return fmt.Sprintf("farm api error: status=%d, message=%s", e.StatusCode, payload.Error)
	}
	return fmt.Sprintf("farm api error: status=%d, body=%s", e.StatusCode, strings.TrimSpace(e.Body))
}

// NetworkError means no response was received: connection refused, DNS
// failure, or the per-call timeout expired.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("farm api unreachable: %v", e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err carries a *NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// Client is a resty-backed farm server client. It is safe for concurrent use.
type Client struct {
	httpClient *resty.Client
	baseURL    string
	timeout    time.Duration
}

// NewClient builds a client for the server at baseURL. Every call is bounded
// by timeout on top of the caller's context.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimSuffix(baseURL, "/")

	restyClient := resty.New()
	restyClient.
		SetBaseURL(base).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(logger.Named("resty").Sugar())

	return &Client{
		httpClient: restyClient,
		baseURL:    base,
		timeout:    timeout,
	}
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends one request and returns the raw response body. A nil body sends
// no payload. The returned error is a *HTTPError for error statuses, a
// *NetworkError when no response arrived in time, or the caller's context
// error when the caller cancelled.
func (c *Client) Do(ctx context.Context, method, path, token string, body []byte) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := c.httpClient.R().SetContext(callCtx)
	if token != "" {
		req.SetAuthToken(token)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return nil, &NetworkError{Err: fmt.Errorf("%s %s: %w", method, path, err)}
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	return json.RawMessage(resp.Body()), nil
}

// LoginResponse is the payload of POST /api/auth/login.
type LoginResponse struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return LoginResponse{}, fmt.Errorf("encode login: %w", err)
	}

	raw, err := c.Do(ctx, http.MethodPost, "/api/auth/login", "", payload)
	if err != nil {
		return LoginResponse{}, err
	}

	var out LoginResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return LoginResponse{}, fmt.Errorf("decode login response: %w", err)
	}
	return out, nil
}

// Me returns the user owning token.
func (c *Client) Me(ctx context.Context, token string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, "/api/auth/me", token, nil)
}

// Logout revokes token server side.
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.Do(ctx, http.MethodPost, "/api/auth/logout", token, nil)
	return err
}

// Health probes GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Do(ctx, http.MethodGet, "/healthz", "", nil)
	return err
}

// Changes reads the remote change feed of collection after since.
func (c *Client) Changes(ctx context.Context, token, collection string, since int64, limit int) (models.ChangesResponse, error) {
	query := url.Values{}
	query.Set("since", strconv.FormatInt(since, 10))
	query.Set("limit", strconv.Itoa(limit))
	path := fmt.Sprintf("/sync/%s/changes?%s", url.PathEscape(collection), query.Encode())

	raw, err := c.Do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return models.ChangesResponse{}, denied(err)
	}

	var out models.ChangesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.ChangesResponse{}, fmt.Errorf("decode %s changes: %w", collection, err)
	}
	return out, nil
}

// BulkDocs pushes documents to the remote store of collection.
func (c *Client) BulkDocs(ctx context.Context, token, collection string, docs []models.Document) (models.BulkDocsResponse, error) {
	payload, err := json.Marshal(models.BulkDocsRequest{Docs: docs})
	if err != nil {
		return models.BulkDocsResponse{}, fmt.Errorf("encode %s bulk docs: %w", collection, err)
	}

	raw, err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/sync/%s/bulk_docs", url.PathEscape(collection)), token, payload)
	if err != nil {
		return models.BulkDocsResponse{}, denied(err)
	}

	var out models.BulkDocsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.BulkDocsResponse{}, fmt.Errorf("decode %s bulk docs response: %w", collection, err)
	}
	return out, nil
}

func denied(err error) error {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) &&
		(httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden) {
		return fmt.Errorf("%w: %w", ErrDenied, httpErr)
	}
	return err
}
