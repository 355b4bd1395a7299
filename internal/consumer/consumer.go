// Package consumer drives the fetch/account/commit loop: it pulls bounded
// batches from the stream, feeds them to the pipeline, and commits offsets
// only once every record in the batch has a terminal outcome.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chatlens/sentiment-worker/internal/domain"
	"github.com/chatlens/sentiment-worker/internal/metrics"
	"github.com/chatlens/sentiment-worker/internal/retry"
	"github.com/chatlens/sentiment-worker/internal/telemetry"
)

// ErrSourceClosed signals a clean end of the stream.
var ErrSourceClosed = errors.New("source closed")

type TopicPartition struct {
	Topic     string
	Partition int32
}

// LagReporter is optionally implemented by sources that track high water
// marks.
type LagReporter interface {
	HighWaterMarks() map[TopicPartition]int64
}

// Source is the stream the consumer reads. Poll returns an empty batch on
// fetch timeout, not an error.
type Source interface {
	Poll(ctx context.Context) ([]domain.Record, error)
	Commit(ctx context.Context) error
	Close()
}

type Consumer struct {
	source     Source
	records    chan<- domain.Record
	results    <-chan domain.Result
	observer   metrics.PipelineObserver
	logger     *slog.Logger
	pollPolicy retry.Policy
	lastBatch  atomic.Value
}

type Option func(*Consumer)

func WithObserver(obs metrics.PipelineObserver) Option {
	return func(c *Consumer) { c.observer = obs }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Consumer) { c.logger = l }
}

// WithPollPolicy sets the backoff between failed polls. Attempts are
// uncapped regardless of the policy's MaxAttempts; giving up on the broker
// is the supervisor's decision.
func WithPollPolicy(p retry.Policy) Option {
	return func(c *Consumer) { c.pollPolicy = p }
}

func New(source Source, records chan<- domain.Record, results <-chan domain.Result, opts ...Option) *Consumer {
	c := &Consumer{
		source:   source,
		records:  records,
		results:  results,
		observer: metrics.NoopObserver{},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// LastBatchTime reports when a poll last returned, for liveness checks.
func (c *Consumer) LastBatchTime() time.Time {
	t, _ := c.lastBatch.Load().(time.Time)
	return t
}

// Run loops until ctx is done, the source closes, or a commit fails after
// its single retry. A commit failure is fatal: the caller must exit and let
// the supervisor restart the process.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batchStart := time.Now()
		batch, err := c.poll(ctx)
		c.lastBatch.Store(time.Now())
		if errors.Is(err, ErrSourceClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			continue
		}

		batchCtx, batchSpan := telemetry.StartBatchSpan(ctx, len(batch))
		state, err := c.accountBatch(batchCtx, batch)
		if err != nil {
			batchSpan.End()
			return err
		}

		commitCtx, commitSpan := telemetry.StartCommitSpan(batchCtx)
		err = c.commit(commitCtx)
		commitSpan.End()
		batchSpan.End()
		if err != nil {
			return err
		}

		c.observer.RecordBatchDuration(time.Since(batchStart).Seconds())
		c.reportLag(batch)
		c.logger.Info("batch committed", "size", len(batch), "outcomes", outcomeSummary(state))
	}
}

// poll retries broker failures with uncapped backoff.
func (c *Consumer) poll(ctx context.Context) ([]domain.Record, error) {
	pol := c.pollPolicy
	pol.MaxAttempts = 0
	if pol.Notify == nil {
		pol.Notify = func(err error, wait time.Duration) {
			c.logger.Warn("stream poll failed, backing off", "wait", wait, "error", err)
		}
	}
	retryable := func(err error) bool {
		return !errors.Is(err, ErrSourceClosed)
	}
	return retry.Do(ctx, pol, retryable, func(ctx context.Context) ([]domain.Record, error) {
		return c.source.Poll(ctx)
	})
}

// accountBatch feeds the batch to the pipeline and blocks until every
// record reports a terminal outcome.
func (c *Consumer) accountBatch(ctx context.Context, batch []domain.Record) (*domain.BatchState, error) {
	state := domain.NewBatchState(batch)

	go func() {
		for _, rec := range batch {
			select {
			case <-ctx.Done():
				return
			case c.records <- rec:
			}
		}
	}()

	for !state.Done() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-c.results:
			state.Resolve(res.Record.Coordinate(), res.Outcome)
			c.observer.RecordOutcome(res.Outcome.String())
		}
	}
	return state, nil
}

// commit retries once; a second failure is fatal.
func (c *Consumer) commit(ctx context.Context) error {
	err := c.source.Commit(ctx)
	if err == nil {
		return nil
	}
	c.logger.Error("offset commit failed, retrying once", "error", err)
	if err = c.source.Commit(ctx); err != nil {
		return fmt.Errorf("offset commit: %w", err)
	}
	return nil
}

func (c *Consumer) reportLag(batch []domain.Record) {
	reporter, ok := c.source.(LagReporter)
	if !ok {
		return
	}
	watermarks := reporter.HighWaterMarks()
	maxOffset := make(map[TopicPartition]int64, len(watermarks))
	for _, rec := range batch {
		tp := TopicPartition{Topic: rec.Topic, Partition: rec.Partition}
		if cur, ok := maxOffset[tp]; !ok || rec.Offset > cur {
			maxOffset[tp] = rec.Offset
		}
	}
	for tp, hwm := range watermarks {
		offset, ok := maxOffset[tp]
		if !ok {
			continue
		}
		lag := hwm - offset - 1
		if lag < 0 {
			lag = 0
		}
		c.observer.RecordConsumerLag(tp.Topic, tp.Partition, lag)
	}
}

func outcomeSummary(state *domain.BatchState) map[string]int {
	counts := state.Counts()
	out := make(map[string]int, len(counts))
	for o, n := range counts {
		out[o.String()] = n
	}
	return out
}
