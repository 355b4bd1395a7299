package metrics

// PipelineObserver receives counters from the consumer and pipeline. The
// Noop implementation keeps tests free of a registry.
type PipelineObserver interface {
	RecordOutcome(outcome string)
	RecordStageRetry(stage string)
	RecordBatchDuration(seconds float64)
	RecordConsumerLag(topic string, partition int32, lag int64)
	RecordDLQRouted()
	RecordDLQSinkError()
}

type NoopObserver struct{}

func (NoopObserver) RecordOutcome(_ string)                       {}
func (NoopObserver) RecordStageRetry(_ string)                    {}
func (NoopObserver) RecordBatchDuration(_ float64)                {}
func (NoopObserver) RecordConsumerLag(_ string, _ int32, _ int64) {}
func (NoopObserver) RecordDLQRouted()                             {}
func (NoopObserver) RecordDLQSinkError()                          {}
