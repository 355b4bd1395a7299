// Package pipeline fans fetched records through filter, translation,
// prediction, and the result sink, reporting one terminal outcome per
// record. Records in a batch are processed concurrently up to the worker
// count; one record's failure never aborts its siblings.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chatlens/sentiment-worker/internal/domain"
	"github.com/chatlens/sentiment-worker/internal/metrics"
	"github.com/chatlens/sentiment-worker/internal/retry"
	"github.com/chatlens/sentiment-worker/internal/seen"
	"github.com/chatlens/sentiment-worker/internal/telemetry"
	"github.com/chatlens/sentiment-worker/internal/watch"
)

// Translator produces target-language text; the client retries internally.
type Translator interface {
	Translate(ctx context.Context, text string) (domain.Translation, error)
}

// Predictor scores text; the client retries internally.
type Predictor interface {
	Predict(ctx context.Context, text string) (domain.Prediction, error)
}

// Sink receives the enrichment for every successfully predicted record.
type Sink interface {
	Publish(ctx context.Context, e domain.Enrichment) error
}

type Config struct {
	// Workers bounds how many records are in the translate/predict stages
	// at once.
	Workers      int
	RecordBuffer int
	DLQBuffer    int
}

type Pipeline struct {
	cfg        Config
	watchSet   *watch.Set
	translator Translator
	predictor  Predictor
	sink       Sink
	seen       seen.Store
	observer   metrics.PipelineObserver
	logger     *slog.Logger

	records chan domain.Record
	results chan domain.Result
	dlq     chan domain.Result
	wg      sync.WaitGroup
}

type Option func(*Pipeline)

func WithObserver(obs metrics.PipelineObserver) Option {
	return func(p *Pipeline) { p.observer = obs }
}

func WithSeenStore(s seen.Store) Option {
	return func(p *Pipeline) { p.seen = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func New(cfg Config, watchSet *watch.Set, translator Translator, predictor Predictor, sink Sink, opts ...Option) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	p := &Pipeline{
		cfg:        cfg,
		watchSet:   watchSet,
		translator: translator,
		predictor:  predictor,
		sink:       sink,
		seen:       seen.NoopStore{},
		observer:   metrics.NoopObserver{},
		logger:     slog.Default(),
		records:    make(chan domain.Record, cfg.RecordBuffer),
		results:    make(chan domain.Result, cfg.RecordBuffer),
		dlq:        make(chan domain.Result, cfg.DLQBuffer),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Records is where the consumer feeds fetched records.
func (p *Pipeline) Records() chan<- domain.Record { return p.records }

// Results reports one terminal outcome per fed record.
func (p *Pipeline) Results() <-chan domain.Result { return p.results }

// DLQ carries permanently failed records for dead-lettering.
func (p *Pipeline) DLQ() <-chan domain.Result { return p.dlq }

// Run blocks until ctx is done and all workers have drained.
func (p *Pipeline) Run(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.wg.Wait()
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-p.records:
			if !ok {
				return
			}
			res := p.process(ctx, rec)
			if !res.Outcome.Terminal() {
				// Shutdown interrupted the record mid-flight; it will be
				// redelivered, so it must not be accounted or dead-lettered.
				continue
			}
			select {
			case <-ctx.Done():
				return
			case p.results <- res:
			}
			if res.Outcome == domain.OutcomeFailed {
				p.observer.RecordDLQRouted()
				select {
				case <-ctx.Done():
					return
				case p.dlq <- res:
				}
			}
		}
	}
}

func (p *Pipeline) process(ctx context.Context, rec domain.Record) domain.Result {
	ctx, span := telemetry.StartProcessSpan(ctx, rec)
	defer span.End()

	var msg domain.Message
	if err := json.Unmarshal(rec.Value, &msg); err != nil {
		return p.failed(rec, domain.StageDecode, fmt.Errorf("decode record payload: %w", err))
	}
	if msg.Text == "" {
		return p.failed(rec, domain.StageDecode, fmt.Errorf("record payload has no message text"))
	}

	if !p.watchSet.Keep(msg.ChannelID) {
		return domain.Result{Record: rec, Outcome: domain.OutcomeFiltered}
	}

	key := rec.Coordinate().String()
	if p.seen.Seen(ctx, key) {
		p.logger.Debug("skipping already-processed record", "coordinate", key)
		return domain.Result{Record: rec, Outcome: domain.OutcomeDuplicate}
	}

	translation, err := p.translator.Translate(ctx, msg.Text)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Result{Record: rec}
		}
		return p.failed(rec, domain.StageTranslate, err)
	}

	prediction, err := p.predictor.Predict(ctx, translation.Text)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Result{Record: rec}
		}
		return p.failed(rec, domain.StagePredict, err)
	}

	enrichment := domain.Enrichment{
		ChannelID:      msg.ChannelID,
		UserID:         msg.UserID,
		Text:           msg.Text,
		TranslatedText: translation.Text,
		SourceLanguage: translation.SourceLanguage,
		Scores:         prediction.Scores,
		Topic:          rec.Topic,
		Partition:      rec.Partition,
		Offset:         rec.Offset,
		IngestedAt:     rec.Timestamp,
	}

	pubCtx, pubSpan := telemetry.StartPublishSpan(ctx, msg.ChannelID)
	err = p.sink.Publish(pubCtx, enrichment)
	pubSpan.End()
	if err != nil {
		if ctx.Err() != nil {
			return domain.Result{Record: rec}
		}
		return p.failed(rec, domain.StagePublish, err)
	}

	p.seen.Mark(ctx, key)
	return domain.Result{Record: rec, Outcome: domain.OutcomePredicted}
}

func (p *Pipeline) failed(rec domain.Record, stage domain.Stage, err error) domain.Result {
	attempts := retry.Attempts(err)
	p.logger.Warn("record permanently failed",
		"stage", string(stage),
		"coordinate", rec.Coordinate().String(),
		"attempts", attempts,
		"error", err,
	)
	return domain.Result{
		Record:   rec,
		Outcome:  domain.OutcomeFailed,
		Stage:    stage,
		Err:      err,
		Attempts: attempts,
	}
}
