// Package predict wraps the sentiment prediction endpoint with timeout,
// status-code classification, and capped retry.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chatlens/sentiment-worker/internal/domain"
	"github.com/chatlens/sentiment-worker/internal/ratelimit"
	"github.com/chatlens/sentiment-worker/internal/retry"
	"github.com/chatlens/sentiment-worker/internal/telemetry"
)

// Kind classifies a prediction failure for retry purposes.
type Kind int

const (
	// KindThrottled is a 429; retryable.
	KindThrottled Kind = iota + 1
	// KindServerError is a 5xx; retryable.
	KindServerError
	// KindUnavailable covers transport errors and timeouts; retryable.
	KindUnavailable
	// KindRejected is any other non-2xx; permanent.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindThrottled:
		return "throttled"
	case KindServerError:
		return "server_error"
	case KindUnavailable:
		return "unavailable"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("predict (%s, status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("predict (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether err is a prediction failure worth retrying.
func Retryable(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == KindThrottled || pe.Kind == KindServerError || pe.Kind == KindUnavailable
}

type request struct {
	Text string `json:"text"`
}

type Client struct {
	url        string
	httpClient *http.Client
	authToken  string
	timeout    time.Duration
	policy     retry.Policy
	limiter    *ratelimit.TokenBucket
}

type Option func(*Client)

func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

func WithLimiter(tb *ratelimit.TokenBucket) Option {
	return func(c *Client) { c.limiter = tb }
}

func NewClient(url string, httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		url:        url,
		httpClient: httpClient,
		timeout:    10 * time.Second,
		policy:     retry.Policy{MaxAttempts: 3},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Predict submits text and returns the endpoint's label-to-score map.
func (c *Client) Predict(ctx context.Context, text string) (domain.Prediction, error) {
	body, err := json.Marshal(request{Text: text})
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("marshal predict request: %w", err)
	}

	return retry.Do(ctx, c.policy, Retryable, func(ctx context.Context) (domain.Prediction, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.Prediction{}, err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		pred, err := c.call(callCtx, body)
		if err != nil && ctx.Err() != nil {
			// Shutdown, not an endpoint failure.
			return domain.Prediction{}, ctx.Err()
		}
		return pred, err
	})
}

func (c *Client) call(ctx context.Context, body []byte) (domain.Prediction, error) {
	ctx, span := telemetry.StartPredictSpan(ctx, c.url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Prediction{}, &Error{Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.Prediction{}, err
	}

	var scores map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&scores); err != nil {
		return domain.Prediction{}, &Error{Kind: KindRejected, Err: fmt.Errorf("decode predict response: %w", err)}
	}
	return domain.Prediction{Scores: scores}, nil
}

func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindThrottled, Status: status, Err: errors.New("endpoint throttled")}
	case status >= 500:
		return &Error{Kind: KindServerError, Status: status, Err: errors.New("endpoint server error")}
	default:
		return &Error{Kind: KindRejected, Status: status, Err: errors.New("endpoint rejected request")}
	}
}
