package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	"github.com/chatlens/sentiment-worker/internal/consumer"
	"github.com/chatlens/sentiment-worker/internal/domain"
	"github.com/chatlens/sentiment-worker/internal/msk"
)

const (
	producerRetries         = 5
	producerDeliveryTimeout = 30 * time.Second
)

// commonKafkaOpts applies broker seeds and, when MSK credentials are
// present, SASL_SSL with SCRAM-SHA-512.
func commonKafkaOpts(brokers []string, auth *msk.ConnectionInfo) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
	}
	if auth != nil {
		opts = append(opts,
			kgo.SASL(scram.Auth{User: auth.Username, Pass: auth.Password}.AsSha512Mechanism()),
			kgo.DialTLSConfig(new(tls.Config)),
		)
	}
	return opts
}

// kafkaSource adapts a kgo consumer group client to consumer.Source.
type kafkaSource struct {
	client       *kgo.Client
	fetchTimeout time.Duration
	maxBatch     int
	logger       *slog.Logger

	mu         sync.Mutex
	watermarks map[consumer.TopicPartition]int64
}

func newKafkaSource(brokers []string, auth *msk.ConnectionInfo, topic, group string, maxBatch int, fetchTimeout time.Duration, logger *slog.Logger) (*kafkaSource, error) {
	opts := append(commonKafkaOpts(brokers, auth),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
	)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer client: %w", err)
	}
	return &kafkaSource{
		client:       client,
		fetchTimeout: fetchTimeout,
		maxBatch:     maxBatch,
		logger:       logger,
		watermarks:   make(map[consumer.TopicPartition]int64),
	}, nil
}

// Poll fetches up to maxBatch records, returning an empty batch when the
// fetch timeout elapses with nothing to read.
func (s *kafkaSource) Poll(ctx context.Context) ([]domain.Record, error) {
	pollCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	fetches := s.client.PollRecords(pollCtx, s.maxBatch)
	if fetches.IsClientClosed() {
		return nil, consumer.ErrSourceClosed
	}
	return s.collect(ctx, fetches)
}

// collect converts a poll's fetches into records. Anything PollRecords
// returned counts as dirty toward the next offset commit, so fetched records
// are always handed to the caller even when another partition reported an
// error in the same poll; dropping them here would let the commit advance
// past records that never reached accounting. Errors surface only when the
// poll yielded nothing, and a persistent failure re-surfaces on the next
// poll.
func (s *kafkaSource) collect(ctx context.Context, fetches kgo.Fetches) ([]domain.Record, error) {
	var records []domain.Record
	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		if p.Err == nil {
			s.mu.Lock()
			s.watermarks[consumer.TopicPartition{Topic: p.Topic, Partition: p.Partition}] = p.HighWatermark
			s.mu.Unlock()
		}
		for _, r := range p.Records {
			records = append(records, domain.Record{
				Key:       r.Key,
				Value:     r.Value,
				Topic:     r.Topic,
				Partition: r.Partition,
				Offset:    r.Offset,
				Timestamp: r.Timestamp,
			})
		}
	})

	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.Canceled) || errors.Is(fe.Err, context.DeadlineExceeded) {
			if ctx.Err() != nil && len(records) == 0 {
				return nil, consumer.ErrSourceClosed
			}
			continue // fetch timeout: not an error
		}
		if len(records) > 0 {
			s.logger.Warn("kafka fetch error alongside fetched records, deferring",
				"topic", fe.Topic, "partition", fe.Partition, "error", fe.Err)
			continue
		}
		return nil, fmt.Errorf("kafka poll %s/%d: %w", fe.Topic, fe.Partition, fe.Err)
	}
	return records, nil
}

func (s *kafkaSource) Commit(ctx context.Context) error {
	if err := s.client.CommitUncommittedOffsets(ctx); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}
	return nil
}

func (s *kafkaSource) Close() {
	s.client.Close()
}

// HighWaterMarks implements consumer.LagReporter.
func (s *kafkaSource) HighWaterMarks() map[consumer.TopicPartition]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[consumer.TopicPartition]int64, len(s.watermarks))
	for tp, hwm := range s.watermarks {
		out[tp] = hwm
	}
	return out
}
