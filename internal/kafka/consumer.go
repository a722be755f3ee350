package kafka

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog/log"

	"trackd/internal/config"
)

// MessageHandler processes one consumed message. A nil return commits the offset.
type MessageHandler func(ctx context.Context, msg *kafka.Message) error

// MessageConsumer defines the interface for a Kafka message consumer.
type MessageConsumer interface {
	Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error
	Close()
}

// confluentKafkaConsumer is an implementation of MessageConsumer using confluent-kafka-go.
type confluentKafkaConsumer struct {
	consumer *kafka.Consumer
	cfg      config.KafkaConfig
	groupID  string
}

// NewConfluentKafkaConsumer prepares a consumer; the underlying client is created in Consume.
func NewConfluentKafkaConsumer(cfg config.KafkaConfig) (MessageConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: no brokers configured")
	}
	return &confluentKafkaConsumer{cfg: cfg}, nil
}

// Consume blocks until ctx is canceled or a fatal Kafka error occurs.
func (c *confluentKafkaConsumer) Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error {
	if len(topics) == 0 {
		return fmt.Errorf("kafka consumer: no topics specified")
	}
	c.groupID = groupID

	configMap := newConfigMap(c.cfg)
	_ = configMap.SetKey("group.id", groupID)
	_ = configMap.SetKey("auto.offset.reset", "earliest")
	_ = configMap.SetKey("enable.auto.commit", "false") // 处理成功后手动提交

	consumer, err := kafka.NewConsumer(configMap)
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer for group %s: %w", groupID, err)
	}
	c.consumer = consumer

	if err := c.consumer.SubscribeTopics(topics, nil); err != nil {
		_ = c.consumer.Close()
		c.consumer = nil
		return fmt.Errorf("failed to subscribe to topics %v for group %s: %w", topics, groupID, err)
	}

	logger := log.With().Str("group", groupID).Strs("topics", topics).Logger()
	logger.Info().Msg("Kafka consumer started. Waiting for messages...")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Context canceled, shutting down consumer loop.")
			return nil
		default:
		}

		ev := c.consumer.Poll(1000)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			msgLog := logger.With().Str("topic", *e.TopicPartition.Topic).Str("offset", e.TopicPartition.Offset.String()).Logger()
			if err := handler(ctx, e); err != nil {
				msgLog.Error().Err(err).Msg("Error processing Kafka message")
				continue
			}
			if _, err := c.consumer.CommitMessage(e); err != nil {
				msgLog.Error().Err(err).Msg("Failed to commit offset")
			}
		case kafka.Error:
			logger.Error().Err(e).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg("Kafka consumer error")
			if e.IsFatal() {
				return e
			}
		case kafka.AssignedPartitions:
			logger.Info().Int("partitions", len(e.Partitions)).Msg("Partitions assigned")
			_ = c.consumer.Assign(e.Partitions)
		case kafka.RevokedPartitions:
			logger.Info().Int("partitions", len(e.Partitions)).Msg("Partitions revoked")
			_ = c.consumer.Unassign()
		}
	}
}

// Close closes the Kafka consumer.
func (c *confluentKafkaConsumer) Close() {
	if c.consumer == nil {
		return
	}
	if err := c.consumer.Close(); err != nil {
		log.Error().Err(err).Str("group", c.groupID).Msg("Error closing Kafka consumer")
	} else {
		log.Info().Str("group", c.groupID).Msg("Kafka consumer closed.")
	}
	c.consumer = nil
}
