package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry      *prometheus.Registry
	outcomes      *prometheus.CounterVec
	stageRetries  *prometheus.CounterVec
	batchDuration prometheus.Histogram
	consumerLag   *prometheus.GaugeVec
	dlqRouted     prometheus.Counter
	dlqSinkError  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_records_processed_total",
		Help: "Total records reaching a terminal outcome, by outcome",
	}, []string{"outcome"})

	stageRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_stage_retries_total",
		Help: "Total retry attempts per pipeline stage",
	}, []string{"stage"})

	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentiment_batch_duration_seconds",
		Help:    "Duration from batch fetch to offset commit in seconds",
		Buckets: prometheus.DefBuckets,
	})

	consumerLag := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentiment_consumer_lag",
		Help: "Kafka consumer lag per topic and partition",
	}, []string{"topic", "partition"})

	dlqRouted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentiment_dlq_routed_total",
		Help: "Total permanently failed records routed to the DLQ",
	})

	dlqSinkError := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentiment_dlq_sink_error_total",
		Help: "Total DLQ sink publish failures",
	})

	reg.MustRegister(outcomes, stageRetries, batchDuration, consumerLag, dlqRouted, dlqSinkError)

	return &Metrics{
		registry:      reg,
		outcomes:      outcomes,
		stageRetries:  stageRetries,
		batchDuration: batchDuration,
		consumerLag:   consumerLag,
		dlqRouted:     dlqRouted,
		dlqSinkError:  dlqSinkError,
	}
}

func (m *Metrics) RecordOutcome(outcome string) {
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordStageRetry(stage string) {
	m.stageRetries.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordBatchDuration(seconds float64) {
	m.batchDuration.Observe(seconds)
}

func (m *Metrics) RecordConsumerLag(topic string, partition int32, lag int64) {
	m.consumerLag.WithLabelValues(topic, strconv.Itoa(int(partition))).Set(float64(lag))
}

func (m *Metrics) RecordDLQRouted() {
	m.dlqRouted.Inc()
}

func (m *Metrics) RecordDLQSinkError() {
	m.dlqSinkError.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
