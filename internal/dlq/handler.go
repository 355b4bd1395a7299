package dlq

import (
	"context"
	"log/slog"

	"github.com/chatlens/sentiment-worker/internal/domain"
	"github.com/chatlens/sentiment-worker/internal/telemetry"
)

// DeadLetterSink receives records that failed permanently.
type DeadLetterSink interface {
	Send(ctx context.Context, result domain.Result) error
}

type SinkErrorObserver interface {
	RecordDLQSinkError()
}

type noopSinkObserver struct{}

func (noopSinkObserver) RecordDLQSinkError() {}

// Handler drains the pipeline's failed-record channel into the sink. A sink
// failure falls back to the secondary sink when one is configured; the
// record's offset has already been accounted, so dead-lettering is best
// effort.
type Handler struct {
	source   <-chan domain.Result
	sink     DeadLetterSink
	fallback DeadLetterSink
	observer SinkErrorObserver
	logger   *slog.Logger
}

type Option func(*Handler)

func WithObserver(obs SinkErrorObserver) Option {
	return func(h *Handler) { h.observer = obs }
}

func WithFallback(sink DeadLetterSink) Option {
	return func(h *Handler) { h.fallback = sink }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

func NewHandler(source <-chan domain.Result, sink DeadLetterSink, opts ...Option) *Handler {
	h := &Handler{
		source:   source,
		sink:     sink,
		observer: noopSinkObserver{},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-h.source:
			if !ok {
				return
			}
			h.route(ctx, result)
		}
	}
}

func (h *Handler) route(ctx context.Context, result domain.Result) {
	ctx, span := telemetry.StartDLQSpan(ctx, result)
	defer span.End()

	err := h.sink.Send(ctx, result)
	if err == nil {
		return
	}
	h.observer.RecordDLQSinkError()
	h.logger.Error("dlq sink publish failed",
		"error", err,
		"coordinate", result.Record.Coordinate().String(),
		"stage", string(result.Stage),
		"attempts", result.Attempts,
	)

	if h.fallback == nil {
		return
	}
	if err := h.fallback.Send(ctx, result); err != nil {
		h.observer.RecordDLQSinkError()
		h.logger.Error("dlq fallback sink failed",
			"error", err,
			"coordinate", result.Record.Coordinate().String(),
		)
	}
}
