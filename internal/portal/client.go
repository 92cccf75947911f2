package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	userTokenHeader = "X-UserToken"

	defaultUserAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	defaultAuthRetries    = 3
	defaultAuthRetryDelay = 1500 * time.Millisecond
)

// HTTPError is returned for transport failures, non-2xx responses and 401s
// that outlived the retry budget. Status is 0 for transport failures.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *HTTPError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("portal: %s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("portal: unexpected status %d from %s %s: %s", e.Status, e.Method, e.URL, e.Body)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	// Timeout bounds each attempt; zero disables it.
	Timeout time.Duration
	// RequestsPerSecond paces outbound requests; <= 0 disables pacing.
	RequestsPerSecond float64
	// AuthRetries is the number of extra attempts after a 401. Negative disables retries.
	AuthRetries int
	// AuthRetryDelay is the fixed wait before each 401 retry.
	AuthRetryDelay time.Duration
	UserAgent      string
	Logger         *slog.Logger
}

// Client is the only path to the portal. It injects the current credentials
// into every attempt, folds refreshed credentials from every response back
// into the store, and retries 401s a bounded number of times.
type Client struct {
	http   *resty.Client
	creds  *CredentialStore
	logger *slog.Logger
}

// NewClient creates a Client that reads and refreshes creds.
func NewClient(creds *CredentialStore, opts Options) *Client {
	if opts.AuthRetries == 0 {
		opts.AuthRetries = defaultAuthRetries
	} else if opts.AuthRetries < 0 {
		opts.AuthRetries = 0
	}
	if opts.AuthRetryDelay <= 0 {
		opts.AuthRetryDelay = defaultAuthRetryDelay
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Client{creds: creds, logger: opts.Logger}

	httpClient := resty.New()
	// Credentials live in the store; a jar would send stale duplicates.
	httpClient.SetCookieJar(nil)
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}
	httpClient.SetHeader("User-Agent", opts.UserAgent)
	httpClient.SetHeader("Accept", "application/json, text/plain, */*")

	if opts.RequestsPerSecond > 0 {
		limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}
	httpClient.OnBeforeRequest(c.injectCredentials)
	httpClient.OnAfterResponse(c.observeResponse)

	delay := opts.AuthRetryDelay
	httpClient.
		SetRetryCount(opts.AuthRetries).
		SetRetryWaitTime(delay).
		SetRetryMaxWaitTime(delay).
		SetRetryAfter(func(*resty.Client, *resty.Response) (time.Duration, error) {
			return delay, nil
		}).
		AddRetryCondition(func(res *resty.Response, err error) bool {
			return err == nil && res != nil && res.StatusCode() == http.StatusUnauthorized
		}).
		AddRetryHook(func(res *resty.Response, _ error) {
			c.logger.Warn("portal returned 401",
				"url", res.Request.URL, "attempt", res.Request.Attempt, "max_retries", opts.AuthRetries)
		})

	c.http = httpClient
	return c
}

func (c *Client) injectCredentials(_ *resty.Client, req *resty.Request) error {
	cur := c.creds.Load()
	if cur.SessionCookie != "" {
		req.SetHeader("Cookie", cur.SessionCookie)
	}
	if cur.UserToken != "" {
		req.SetHeader(userTokenHeader, cur.UserToken)
	}
	return nil
}

// observeResponse runs for every response regardless of status.
func (c *Client) observeResponse(_ *resty.Client, res *resty.Response) error {
	refreshed := false
	c.creds.Update(func(cur Credentials) Credentials {
		next, changed := refreshFrom(cur, res.Header(), time.Now())
		refreshed = changed
		return next
	})
	if refreshed {
		c.logger.Debug("portal credentials refreshed", "url", res.Request.URL)
	}
	return nil
}

// Do performs a request and returns the response when the status is 2xx.
func (c *Client) Do(ctx context.Context, method, url string) (*resty.Response, error) {
	res, err := c.http.R().SetContext(ctx).Execute(method, url)
	if err != nil {
		return nil, &HTTPError{Method: method, URL: url, Err: err}
	}
	if code := res.StatusCode(); code < 200 || code > 299 {
		return nil, &HTTPError{Method: method, URL: url, Status: code, Body: res.String()}
	}
	return res, nil
}

// Get is shorthand for Do with GET.
func (c *Client) Get(ctx context.Context, url string) (*resty.Response, error) {
	return c.Do(ctx, http.MethodGet, url)
}

// GetJSON fetches url and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	res, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(res.Body(), v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == status
}
