package galaxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/volunteerhq/galaxysync/internal/domain/resource"
)

// sinceLayout is the timestamp format the API accepts for
// incremental filters.
const sinceLayout = "2006-01-02 15:04:05"

// Client talks to the Galaxy Digital REST API. It logs in lazily and
// refreshes its token when a request comes back 401.
type Client struct {
	baseURL    string
	apiKey     string
	email      string
	password   string
	httpClient *http.Client
	loc        *time.Location
	retry      RetryPolicy
	logger     *slog.Logger

	mu    sync.Mutex
	token string
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithLocation sets the timezone used to format since filters.
func WithLocation(loc *time.Location) ClientOption {
	return func(c *Client) { c.loc = loc }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = p }
}

// NewClient creates a Client for the given API credentials.
func NewClient(baseURL, apiKey, email, password string, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		email:      email,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		loc:        time.UTC,
		retry:      DefaultRetryPolicy(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RetryPolicy returns the client's retry policy so callers can share it.
func (c *Client) RetryPolicy() RetryPolicy { return c.retry }

type loginRequest struct {
	Key      string `json:"key"`
	Email    string `json:"user_email"`
	Password string `json:"user_password"`
}

type loginResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

// Login authenticates and stores the session token.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{Key: c.apiKey, Email: c.email, Password: c.password})
	if err != nil {
		return fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("login request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		drained, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("login failed: %s", bytes.TrimSpace(drained))
		if resp.StatusCode >= 500 {
			return &TransientError{StatusCode: resp.StatusCode, Err: err}
		}
		return &TerminalError{StatusCode: resp.StatusCode, Err: err}
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return &TerminalError{Err: fmt.Errorf("failed to decode login response: %w", err)}
	}
	if lr.Data.Token == "" {
		return &TerminalError{Err: fmt.Errorf("login response carried no token")}
	}

	c.mu.Lock()
	c.token = lr.Data.Token
	c.mu.Unlock()

	c.logger.Debug("logged in to galaxy api")
	return nil
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	if err := c.Login(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	token = c.token
	c.mu.Unlock()
	return token, nil
}

func (c *Client) dropToken(stale string) {
	c.mu.Lock()
	if c.token == stale {
		c.token = ""
	}
	c.mu.Unlock()
}

type listResponse struct {
	Data []json.RawMessage `json:"data"`
}

// ListPage fetches one page of a resource. since is nil for a full
// fetch. A 404 means the filter matched nothing and yields an empty
// page, not an error.
func (c *Client) ListPage(ctx context.Context, res resource.Resource, page, perPage int, since *time.Time) ([]json.RawMessage, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	if since != nil && res.SinceParam != "" {
		query.Set(res.SinceParam, since.In(c.loc).Format(sinceLayout))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/"+res.Endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", res.Name, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("%s page %d request failed: %w", res.Name, page, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var lr listResponse
		if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
			return nil, &TerminalError{Err: fmt.Errorf("failed to decode %s page %d: %w", res.Name, page, err)}
		}
		return lr.Data, nil

	case resp.StatusCode == http.StatusNotFound:
		// The API answers 404 when a since filter matches nothing.
		io.Copy(io.Discard, resp.Body)
		return nil, nil

	case resp.StatusCode == http.StatusUnauthorized:
		// Token expired. Drop it so the retry relogs in.
		io.Copy(io.Discard, resp.Body)
		c.dropToken(token)
		return nil, &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s page %d unauthorized", res.Name, page)}

	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}

	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s page %d server error", res.Name, page)}

	default:
		drained, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &TerminalError{StatusCode: resp.StatusCode,
			Err: fmt.Errorf("%s page %d: %s", res.Name, page, bytes.TrimSpace(drained))}
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
