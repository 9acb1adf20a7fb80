package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/redmoon-ch/unchain/pkg/metrics"
	"github.com/redmoon-ch/unchain/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers    []string
	EventTopic string
}

// ParseConfig parses a comma-separated broker string
func ParseConfig(brokers string, eventTopic string) Config {
	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	return Config{
		Brokers:    brokerList,
		EventTopic: eventTopic,
	}
}

// Producer publishes flag lifecycle events to Kafka
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EventTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Allow Kafka to auto-create the topic in dev environments when it doesn't exist yet.
		// Without this, a first publish may fail with "Unknown Topic Or Partition".
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.EventTopic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// FlagEventMessage is a lifecycle event for a feature flag or change request.
// Consumers use these to invalidate SDK caches and to feed external audit sinks.
type FlagEventMessage struct {
	Type        string    `json:"type"` // e.g. "feature.updated", "feature.archived", "change_request.applied"
	Project     string    `json:"project"`
	Environment string    `json:"environment,omitempty"`
	FeatureName string    `json:"feature_name,omitempty"`
	EntityID    string    `json:"entity_id,omitempty"`
	Actor       string    `json:"actor"`
	Timestamp   time.Time `json:"timestamp"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`

	// Optional event payload, e.g. the applied change request changes
	Data map[string]any `json:"data,omitempty"`
}

// Publish publishes a flag event to Kafka. Callers invoke this after the
// database transaction for the mutation has committed.
func (p *Producer) Publish(ctx context.Context, msg *FlagEventMessage) error {
	if msg == nil {
		return fmt.Errorf("flag event is nil")
	}

	ctx, span := tracing.StartSpan(ctx, "Kafka.Publish")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("event_type", msg.Type),
		attribute.String("project", msg.Project),
		attribute.String("environment", msg.Environment),
	)

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.TraceID = tracing.GetTraceID(ctx)
	msg.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Partition by project + feature so events for one flag stay ordered
	key := fmt.Sprintf("%s:%s", msg.Project, msg.FeatureName)

	headers := []kafka.Header{
		{Key: "type", Value: []byte(msg.Type)},
		{Key: "project", Value: []byte(msg.Project)},
	}
	if msg.Environment != "" {
		headers = append(headers, kafka.Header{Key: "environment", Value: []byte(msg.Environment)})
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		metrics.RecordKafkaPublish(p.topic, "error")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to Kafka topic %s", p.topic)
		return err
	}

	metrics.RecordKafkaPublish(p.topic, "ok")
	span.SetStatus(codes.Ok, "message published")
	p.logger.WithContext(ctx).Debugf("Published flag event to Kafka: type=%s project=%s feature=%s trace=%s",
		msg.Type, msg.Project, msg.FeatureName, msg.TraceID)

	return nil
}

// Stats returns producer statistics
func (p *Producer) Stats() kafka.WriterStats {
	return p.writer.Stats()
}
