// Package translate wraps the external translation capability with timeout,
// error classification, and capped retry.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/chatlens/sentiment-worker/internal/domain"
	"github.com/chatlens/sentiment-worker/internal/ratelimit"
	"github.com/chatlens/sentiment-worker/internal/retry"
	"github.com/chatlens/sentiment-worker/internal/telemetry"
)

// Kind classifies a translation failure for retry purposes.
type Kind int

const (
	// KindThrottled means the provider rate-limited the call; retryable.
	KindThrottled Kind = iota + 1
	// KindInvalidInput means the text can never translate; not retried.
	KindInvalidInput
	// KindUnavailable covers transport errors, timeouts, and provider 5xx;
	// retryable.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindThrottled:
		return "throttled"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("translate (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether err is a translation failure worth retrying.
func Retryable(err error) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Kind == KindThrottled || te.Kind == KindUnavailable
}

// API is the raw provider surface; the concrete implementation lives in
// google.go and tests substitute a fake.
type API interface {
	Detect(ctx context.Context, text string) (language.Tag, error)
	Translate(ctx context.Context, text string, target language.Tag) (string, language.Tag, error)
}

type Client struct {
	api     API
	target  language.Tag
	timeout time.Duration
	policy  retry.Policy
	limiter *ratelimit.TokenBucket
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

func WithLimiter(tb *ratelimit.TokenBucket) Option {
	return func(c *Client) { c.limiter = tb }
}

func NewClient(api API, target language.Tag, opts ...Option) *Client {
	c := &Client{
		api:     api,
		target:  target,
		timeout: 10 * time.Second,
		policy:  retry.Policy{MaxAttempts: 3},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Translate returns the text in the client's target language. Text already
// in the target language is returned unchanged without a translation call.
func (c *Client) Translate(ctx context.Context, text string) (domain.Translation, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Translation{}, &Error{Kind: KindInvalidInput, Err: errors.New("empty text")}
	}

	return retry.Do(ctx, c.policy, Retryable, func(ctx context.Context) (domain.Translation, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.Translation{}, err
		}

		ctx, span := telemetry.StartTranslateSpan(ctx, c.target.String())
		defer span.End()

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		detected, err := c.api.Detect(callCtx, text)
		if err != nil {
			return domain.Translation{}, c.classify(ctx, err)
		}
		if detected == c.target {
			return domain.Translation{
				Text:           text,
				SourceLanguage: detected.String(),
				Translated:     false,
			}, nil
		}

		translated, source, err := c.api.Translate(callCtx, text, c.target)
		if err != nil {
			return domain.Translation{}, c.classify(ctx, err)
		}
		return domain.Translation{
			Text:           translated,
			SourceLanguage: source.String(),
			Translated:     true,
		}, nil
	})
}

// classify maps provider errors onto Kind. A per-call deadline counts as
// Unavailable; a canceled parent context passes through untouched so
// shutdown does not look like a provider failure.
func (c *Client) classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	// Deadline, transport failure, or anything the provider wrapper did not
	// recognize: treat as transient.
	return &Error{Kind: KindUnavailable, Err: err}
}
