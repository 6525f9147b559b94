package repository

import (
	"context"
	"fmt"

	"sentioracle/internal/domain/models"
	domrepo "sentioracle/internal/domain/repository"
	pkgkafka "sentioracle/pkg/kafka"
)

// KafkaPublisher fans out confirmed on-chain sentiment updates to
// downstream consumers (indexers, dashboards) over the same Producer the
// teacher's trading pipeline used for its tick stream.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher builds a Publisher against one topic.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

type sentimentUpdateEvent struct {
	Asset        string `json:"asset"`
	ScoreFP      int64  `json:"score_fp"`
	ConfidenceBP int64  `json:"confidence_bp"`
	SampleSize   int64  `json:"sample_size"`
	WindowEndTS  int64  `json:"window_end_ts"`
	TxHash       string `json:"tx_hash"`
}

// PublishUpdate implements domain/repository.Publisher.
func (k *KafkaPublisher) PublishUpdate(ctx context.Context, asset string, sample models.AssetSample, txHash string) error {
	event := sentimentUpdateEvent{
		Asset:        asset,
		ScoreFP:      sample.ScoreFP,
		ConfidenceBP: sample.ConfidenceBP,
		SampleSize:   sample.SampleSize,
		WindowEndTS:  sample.WindowEndTS,
		TxHash:       txHash,
	}
	if err := k.producer.Publish(ctx, k.topic, []byte(asset), event); err != nil {
		return fmt.Errorf("kafka publisher: %w", err)
	}
	return nil
}

// Close implements domain/repository.Publisher.
func (k *KafkaPublisher) Close() error { return k.producer.Close() }

var _ domrepo.Publisher = (*KafkaPublisher)(nil)
