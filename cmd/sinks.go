package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/chatlens/sentiment-worker/internal/domain"
	"github.com/chatlens/sentiment-worker/internal/msk"
)

// kafkaResultSink publishes enrichments to the result topic.
type kafkaResultSink struct {
	client *kgo.Client
	topic  string
}

func newKafkaResultSink(brokers []string, auth *msk.ConnectionInfo, topic string) (*kafkaResultSink, error) {
	opts := append(commonKafkaOpts(brokers, auth),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordRetries(producerRetries),
		kgo.RecordDeliveryTimeout(producerDeliveryTimeout),
	)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create result producer: %w", err)
	}
	return &kafkaResultSink{client: client, topic: topic}, nil
}

func (k *kafkaResultSink) Publish(ctx context.Context, e domain.Enrichment) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal enrichment: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(e.UserID),
		Value: value,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce enrichment to %s: %w", k.topic, err)
	}
	return nil
}

func (k *kafkaResultSink) Close() {
	k.client.Close()
}

// kafkaDLQSink publishes permanently failed records to the dead-letter
// topic with failure metadata in headers.
type kafkaDLQSink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

func newKafkaDLQSink(brokers []string, auth *msk.ConnectionInfo, topic string, logger *slog.Logger) (*kafkaDLQSink, error) {
	opts := append(commonKafkaOpts(brokers, auth),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordRetries(producerRetries),
		kgo.RecordDeliveryTimeout(producerDeliveryTimeout),
	)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create dlq producer: %w", err)
	}
	return &kafkaDLQSink{client: client, topic: topic, logger: logger}, nil
}

func buildDLQRecord(r domain.Result) *kgo.Record {
	headers := []kgo.RecordHeader{
		{Key: "source_topic", Value: []byte(r.Record.Topic)},
		{Key: "source_partition", Value: []byte(strconv.FormatInt(int64(r.Record.Partition), 10))},
		{Key: "source_offset", Value: []byte(strconv.FormatInt(r.Record.Offset, 10))},
		{Key: "stage", Value: []byte(r.Stage)},
		{Key: "attempts", Value: []byte(strconv.Itoa(r.Attempts))},
		{Key: "failed_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	}
	if r.Err != nil {
		headers = append(headers, kgo.RecordHeader{
			Key: "error", Value: []byte(r.Err.Error()),
		})
	}
	return &kgo.Record{
		Key:     r.Record.Key,
		Value:   r.Record.Value,
		Headers: headers,
	}
}

func (k *kafkaDLQSink) Send(ctx context.Context, r domain.Result) error {
	if err := k.client.ProduceSync(ctx, buildDLQRecord(r)).FirstErr(); err != nil {
		return fmt.Errorf("dlq produce to %s: %w", k.topic, err)
	}
	k.logger.Info("dead-lettered record",
		"dlq_topic", k.topic,
		"coordinate", r.Record.Coordinate().String(),
		"stage", string(r.Stage),
	)
	return nil
}

func (k *kafkaDLQSink) Close() {
	k.client.Close()
}
