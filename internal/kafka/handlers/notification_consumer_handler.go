package kafkahandlers

import (
	"context"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"trackd/internal/metrics"
	"trackd/internal/notify"
	ws "trackd/internal/websocket"
)

// EventDeliverer sends the email for an event.
type EventDeliverer interface {
	Deliver(ctx context.Context, e notify.Event) error
}

// Pusher pushes a frame to a connected user.
type Pusher interface {
	Push(userID string, payload []byte)
}

// NotificationConsumerLogic handles events published to the notification topic:
// each event is mailed to the recipient and pushed to their open WebSocket connections.
type NotificationConsumerLogic struct {
	deliverer EventDeliverer
	pusher    Pusher // 可以为 nil
}

// NewNotificationConsumerLogic creates a new instance of NotificationConsumerLogic.
func NewNotificationConsumerLogic(deliverer EventDeliverer, pusher Pusher) *NotificationConsumerLogic {
	if deliverer == nil {
		log.Panic().Msg("EventDeliverer cannot be nil")
	}
	return &NotificationConsumerLogic{deliverer: deliverer, pusher: pusher}
}

// HandleNotification is the MessageHandler passed to the Kafka consumer.
// 通知是尽力而为的：解析或投递失败只记录日志并返回 nil，偏移量照常提交，不做重试。
func (h *NotificationConsumerLogic) HandleNotification(ctx context.Context, msg *kafka.Message) error {
	logger := log.With().Int32("partition", msg.TopicPartition.Partition).Str("offset", msg.TopicPartition.Offset.String()).Logger()

	var event notify.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Error().Err(err).Bytes("value", msg.Value).Msg("无法解析通知事件，跳过")
		return nil
	}

	if h.pusher != nil && event.RecipientID != "" {
		frame, err := json.Marshal(ws.Message{Type: ws.MessageTypeNotification, Data: event})
		if err != nil {
			logger.Error().Err(err).Msg("序列化推送消息失败")
		} else {
			h.pusher.Push(event.RecipientID, frame)
			metrics.RecordNotification("websocket", string(event.Type), "sent")
		}
	}

	if err := h.deliverer.Deliver(ctx, event); err != nil {
		metrics.RecordNotification("email", string(event.Type), "failed")
		logger.Error().Err(err).Str("type", string(event.Type)).Str("to", event.RecipientEmail).Msg("通知邮件发送失败")
		return nil
	}
	metrics.RecordNotification("email", string(event.Type), "sent")
	logger.Debug().Str("type", string(event.Type)).Str("to", event.RecipientEmail).Msg("通知事件已处理")
	return nil
}
