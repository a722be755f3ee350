package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"trackd/internal/kafka"
	"trackd/internal/metrics"
	"trackd/internal/models"
)

// Notifier emits best-effort notifications. Failures are logged and never reach the caller.
type Notifier interface {
	FriendRequest(ctx context.Context, from, to models.User)
	FriendAccepted(ctx context.Context, by, requester models.User)
	Invitation(ctx context.Context, inviter models.User, email string)
	Suggestion(ctx context.Context, from, to models.User, s models.Suggestion)
}

// Deliverer renders an Event to email and sends it through a Mailer.
type Deliverer struct {
	mailer Mailer
}

// NewDeliverer creates a Deliverer backed by mailer.
func NewDeliverer(mailer Mailer) *Deliverer {
	return &Deliverer{mailer: mailer}
}

// Deliver 渲染并发送一封通知邮件。
func (d *Deliverer) Deliver(ctx context.Context, e Event) error {
	if e.RecipientEmail == "" {
		return fmt.Errorf("%s event has no recipient email", e.Type)
	}
	subject, html, err := Render(e)
	if err != nil {
		return err
	}
	return d.mailer.Send(ctx, Message{To: e.RecipientEmail, Subject: subject, HTML: html})
}

// DirectNotifier sends emails from the API process in a detached goroutine.
type DirectNotifier struct {
	builder   EventBuilder
	deliverer *Deliverer
	timeout   time.Duration
}

// NewDirectNotifier creates a notifier that mails events itself.
func NewDirectNotifier(builder EventBuilder, deliverer *Deliverer, timeout time.Duration) *DirectNotifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DirectNotifier{builder: builder, deliverer: deliverer, timeout: timeout}
}

func (n *DirectNotifier) FriendRequest(ctx context.Context, from, to models.User) {
	n.dispatch(n.builder.FriendRequest(from, to))
}

func (n *DirectNotifier) FriendAccepted(ctx context.Context, by, requester models.User) {
	n.dispatch(n.builder.FriendAccepted(by, requester))
}

func (n *DirectNotifier) Invitation(ctx context.Context, inviter models.User, email string) {
	n.dispatch(n.builder.Invitation(inviter, email))
}

func (n *DirectNotifier) Suggestion(ctx context.Context, from, to models.User, s models.Suggestion) {
	n.dispatch(n.builder.Suggestion(from, to, s))
}

// dispatch 不使用请求的 ctx：请求结束后邮件仍需发送。
func (n *DirectNotifier) dispatch(e Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.deliverer.Deliver(ctx, e); err != nil {
			metrics.RecordNotification("email", string(e.Type), "failed")
			log.Error().Err(err).Str("type", string(e.Type)).Str("to", e.RecipientEmail).Msg("发送通知邮件失败")
			return
		}
		metrics.RecordNotification("email", string(e.Type), "sent")
	}()
}

// KafkaNotifier publishes events to the notification topic for notifyserver to deliver.
// 发布在后台进行，请求不等待 Kafka 的投递报告。
type KafkaNotifier struct {
	builder  EventBuilder
	producer kafka.MessageProducer
	topic    string
	timeout  time.Duration

	inflight sync.WaitGroup
}

// NewKafkaNotifier creates a notifier that publishes to topic.
func NewKafkaNotifier(builder EventBuilder, producer kafka.MessageProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{builder: builder, producer: producer, topic: topic, timeout: 5 * time.Second}
}

func (n *KafkaNotifier) FriendRequest(ctx context.Context, from, to models.User) {
	n.publish(n.builder.FriendRequest(from, to))
}

func (n *KafkaNotifier) FriendAccepted(ctx context.Context, by, requester models.User) {
	n.publish(n.builder.FriendAccepted(by, requester))
}

func (n *KafkaNotifier) Invitation(ctx context.Context, inviter models.User, email string) {
	n.publish(n.builder.Invitation(inviter, email))
}

func (n *KafkaNotifier) Suggestion(ctx context.Context, from, to models.User, s models.Suggestion) {
	n.publish(n.builder.Suggestion(from, to, s))
}

// Close waits for in-flight publishes, then flushes and closes the producer.
func (n *KafkaNotifier) Close() {
	n.inflight.Wait()
	n.producer.Close()
}

func (n *KafkaNotifier) publish(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("type", string(e.Type)).Msg("序列化通知事件失败")
		return
	}
	// 以收件邮箱为 key，同一收件人的事件落在同一分区，保持顺序
	key := []byte(e.RecipientEmail)

	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.producer.SendMessage(ctx, n.topic, key, payload); err != nil {
			metrics.RecordNotification("kafka", string(e.Type), "failed")
			log.Error().Err(err).Str("type", string(e.Type)).Str("topic", n.topic).Str("to", e.RecipientEmail).Msg("发布通知事件失败")
			return
		}
		metrics.RecordNotification("kafka", string(e.Type), "published")
	}()
}

// LogNotifier only logs events. Used when neither mail nor Kafka is configured, and in tests.
type LogNotifier struct {
	builder EventBuilder
}

func NewLogNotifier(builder EventBuilder) *LogNotifier {
	return &LogNotifier{builder: builder}
}

func (n *LogNotifier) FriendRequest(ctx context.Context, from, to models.User) {
	n.record(n.builder.FriendRequest(from, to))
}

func (n *LogNotifier) FriendAccepted(ctx context.Context, by, requester models.User) {
	n.record(n.builder.FriendAccepted(by, requester))
}

func (n *LogNotifier) Invitation(ctx context.Context, inviter models.User, email string) {
	n.record(n.builder.Invitation(inviter, email))
}

func (n *LogNotifier) Suggestion(ctx context.Context, from, to models.User, s models.Suggestion) {
	n.record(n.builder.Suggestion(from, to, s))
}

func (n *LogNotifier) record(e Event) {
	metrics.RecordNotification("log", string(e.Type), "skipped")
	log.Info().Str("type", string(e.Type)).Str("to", e.RecipientEmail).Str("actor", e.ActorName).Msg("notification")
}
