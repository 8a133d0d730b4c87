package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/materialmap/internal/platform/ctxutil"
	"github.com/yungbote/materialmap/internal/platform/logger"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 3
	DefaultBackoffBase = time.Second
	defaultMaxBody     = 64 << 20
)

// MaxRetriesLimit caps the attempt budget, which bounds Backoff's shift.
const MaxRetriesLimit = 10

// Connectivity is the process-wide network-state flag.
type Connectivity interface {
	Online() bool
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type Options struct {
	// Timeout bounds each attempt independently.
	Timeout time.Duration
	// MaxRetries is the total number of attempts per request.
	MaxRetries int
	// BackoffBase is multiplied by 2^attempt between attempts.
	BackoffBase  time.Duration
	MaxBodyBytes int64

	HTTPClient   *http.Client
	Connectivity Connectivity
	Sleep        Sleeper
	Log          *logger.Logger
}

// Response is a fully read 2xx response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

type Client struct {
	timeout     time.Duration
	maxRetries  int
	backoffBase time.Duration
	maxBody     int64

	httpClient *http.Client
	online     Connectivity
	sleep      Sleeper
	log        *logger.Logger
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	maxRetries = min(maxRetries, MaxRetriesLimit)
	base := opts.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	hc := opts.HTTPClient
	if hc == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		// Local-file hosting: base paths of the form file:///srv/catalog.
		tr.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
		hc = &http.Client{Transport: tr}
	}
	online := opts.Connectivity
	if online == nil {
		online = alwaysOnline{}
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		timeout:     timeout,
		maxRetries:  maxRetries,
		backoffBase: base,
		maxBody:     maxBody,
		httpClient:  hc,
		online:      online,
		sleep:       sleep,
		log:         log.With("component", "FetchClient"),
	}
}

// MaxRetries is the attempt budget used by Get and Head.
func (c *Client) MaxRetries() int { return c.maxRetries }

func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, c.maxRetries)
}

func (c *Client) Head(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodHead, url, c.maxRetries)
}

// Do performs method on url with up to maxRetries attempts.
//
// 4xx responses fail on the first attempt. 5xx responses and transport
// errors are retried after BackoffBase*2^attempt, unless the attempt timed
// out or the host is offline, in which case the loop stops early.
func (c *Client) Do(ctx context.Context, method string, url string, maxRetries int) (*Response, error) {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	maxRetries = min(maxRetries, MaxRetriesLimit)

	ctx, span := otel.Tracer("materialmap/fetch").Start(ctx, "fetch "+method)
	defer span.End()
	span.SetAttributes(attribute.String("http.url", url))

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		attempts = attempt

		resp, err := c.attempt(ctx, method, url)
		if err == nil {
			span.SetAttributes(attribute.Int("fetch.attempts", attempts), attribute.Int("http.status_code", resp.StatusCode))
			return resp, nil
		}
		lastErr = err

		var herr *HTTPError
		if errors.As(err, &herr) && herr.IsClientError() {
			break
		}
		c.log.Warn("fetch attempt failed", "url", url, "attempt", attempt, "max_attempts", maxRetries, "load_attempt", ctxutil.Attempt(ctx), "error", err)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			break
		}
		if !c.online.Online() {
			lastErr = fmt.Errorf("%w: %w", ErrOffline, err)
			break
		}
		if attempt < maxRetries {
			if err := c.sleep(ctx, c.Backoff(attempt)); err != nil {
				break
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("request failed")
	}

	nerr := &NetworkError{URL: url, Attempts: attempts, Err: lastErr}
	span.SetAttributes(attribute.Int("fetch.attempts", attempts))
	span.RecordError(nerr)
	span.SetStatus(codes.Error, nerr.Error())
	return nil, nerr
}

// Backoff is the delay after the given 1-based attempt.
func (c *Client) Backoff(attempt int) time.Duration {
	attempt = max(0, min(attempt, MaxRetriesLimit))
	return c.backoffBase * time.Duration(1<<uint(attempt))
}

func (c *Client) attempt(ctx context.Context, method string, url string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := raw
		if len(body) > 512 {
			body = body[:512]
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}
	return &Response{
		URL:        url,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       raw,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
