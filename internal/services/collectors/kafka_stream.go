package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"sentioracle/internal/domain/models"
	"sentioracle/pkg/kafka"
	"sentioracle/pkg/logger"
)

// KafkaStream collects text items pushed by an upstream vendor onto a
// Kafka topic (e.g. a licensed social-media firehose republished
// internally), buffering between Orchestrator cycles the same way
// WebSocketStream does for a raw WebSocket feed. Built on the teacher's
// worker-pool Kafka consumer rather than a bare reader loop, so a slow
// handler backs off instead of falling behind the partition.
type KafkaStream struct {
	source models.Source
	topic  string
	log    *logger.Logger

	consumer *kafka.Consumer

	mu     sync.Mutex
	buffer []models.Item
}

// NewKafkaStream builds a streaming collector consuming one topic.
func NewKafkaStream(source models.Source, brokers []string, topic, groupID string, log *logger.Logger) (*KafkaStream, error) {
	k := &KafkaStream{source: source, topic: topic, log: log}

	consumer, err := kafka.NewConsumer(
		kafka.WithConsumerBrokers(brokers),
		kafka.WithConsumerGroupID(groupID),
		kafka.WithConsumerWorkers(2),
		kafka.WithConsumerDLQ(topic+".dlq"),
	)
	if err != nil {
		return nil, fmt.Errorf("collector %s: kafka consumer: %w", source, err)
	}
	consumer.RegisterHandler(kafkaItemHandler{stream: k})
	consumer.WithConsumerHook(k.traceHook())
	k.consumer = consumer
	return k, nil
}

// traceHook logs upstream latency per message using the trace ID the
// vendor stamps on each record, so a slow publisher shows up against the
// right feed in logs rather than as an undifferentiated consumer lag.
func (k *KafkaStream) traceHook() kafka.HookFuncs {
	return kafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km kafkago.Message, data []byte) (context.Context, kafkago.Message, []byte, error) {
			ctx = kafka.WithStartTime(ctx, time.Now())
			ctx = kafka.WithTraceID(ctx, kafka.ExtractTraceID(km))
			return ctx, km, data, nil
		},
		After: func(ctx context.Context, topic string, km kafkago.Message, data []byte, err error) {
			if err != nil {
				return
			}
			start, _ := ctx.Value(kafka.CtxStartTime).(time.Time)
			traceID, _ := ctx.Value(kafka.CtxTraceID).(string)
			if start.IsZero() {
				return
			}
			k.log.Debug("kafka stream item handled",
				logger.String("source", string(k.source)),
				logger.String("trace_id", traceID),
				logger.String("latency", time.Since(start).String()))
		},
		Err: func(ctx context.Context, topic string, km kafkago.Message, data []byte, err error) {
			k.log.Warn("kafka stream handler failed",
				logger.String("source", string(k.source)),
				logger.String("topic", topic),
				logger.Error(err))
		},
	}
}

// Source implements domain/service.Collector.
func (k *KafkaStream) Source() models.Source { return k.source }

// Run starts the consumer's worker pool and blocks until ctx is
// cancelled, implementing pkg/server.StreamRunner.
func (k *KafkaStream) Run(ctx context.Context) {
	if err := k.consumer.Start(); err != nil {
		k.log.Warn("kafka stream start failed", logger.String("source", string(k.source)), logger.Error(err))
		return
	}
	<-ctx.Done()
	if err := k.consumer.Stop(context.Background()); err != nil {
		k.log.Warn("kafka stream stop failed", logger.String("source", string(k.source)), logger.Error(err))
	}
}

func (k *KafkaStream) push(it models.Item) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.buffer) >= StreamBufferCapacity {
		return
	}
	k.buffer = append(k.buffer, it)
}

// Collect implements domain/service.Collector by draining the buffer of
// items created within [windowStart, windowEnd). nextCursor is always
// empty, the same push-stream semantics as WebSocketStream.Collect.
func (k *KafkaStream) Collect(_ context.Context, windowStart, windowEnd time.Time, assets []string) ([]models.Item, string, error) {
	k.mu.Lock()
	pending := k.buffer
	k.buffer = nil
	k.mu.Unlock()

	wanted := assetSet(assets)
	out := make([]models.Item, 0, len(pending))
	var carry []models.Item
	for _, it := range pending {
		if it.CreatedAt.Before(windowStart) || !it.CreatedAt.Before(windowEnd) {
			if !it.CreatedAt.Before(windowEnd) {
				carry = append(carry, it)
			}
			continue
		}
		if len(wanted) > 0 && !matchesAny(it.AssetTags, wanted) {
			continue
		}
		out = append(out, it)
		if len(out) >= MaxItemsPerCycle {
			break
		}
	}

	if len(carry) > 0 {
		k.mu.Lock()
		k.buffer = append(carry, k.buffer...)
		k.mu.Unlock()
	}

	return out, "", nil
}

// kafkaItemHandler adapts one Kafka message (a JSON-encoded feedItem) into
// KafkaStream's buffer, implementing pkg/kafka.MessageHandler.
type kafkaItemHandler struct {
	stream *KafkaStream
}

func (h kafkaItemHandler) Topic() string { return h.stream.topic }

func (h kafkaItemHandler) Handle(_ context.Context, data []byte) error {
	var fi feedItem
	if err := json.Unmarshal(data, &fi); err != nil {
		return fmt.Errorf("kafka stream %s: decode item: %w", h.stream.source, err)
	}
	h.stream.push(toItem(h.stream.source, fi))
	return nil
}
