package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"trackd/internal/config"
)

// Message 一封待发送的邮件
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer sends a single email. A nil error from a disabled mailer means the mail was skipped.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ProviderError 邮件服务返回的非 2xx 响应
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("mail provider returned %d: %s", e.StatusCode, e.Body)
}

type sendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// HTTPMailer posts to a Resend-compatible `POST {base}/emails` endpoint behind a circuit breaker.
type HTTPMailer struct {
	apiKey  string
	baseURL string
	from    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[any]
}

// NewHTTPMailer creates a mailer from cfg.
func NewHTTPMailer(cfg config.MailConfig) *HTTPMailer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "mail-provider",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 4xx 是请求本身的问题，不应让熔断器打开
		IsSuccessful: func(err error) bool {
			var pe *ProviderError
			if errors.As(err, &pe) {
				return pe.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &HTTPMailer{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		from:    cfg.From,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Enabled reports whether an API key is configured.
func (m *HTTPMailer) Enabled() bool {
	return m.apiKey != ""
}

// Send delivers msg, or logs and skips it when no API key is configured.
func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	if !m.Enabled() {
		log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail API key not configured, skipping email")
		return nil
	}
	_, err := m.breaker.Execute(func() (any, error) {
		return nil, m.post(ctx, msg)
	})
	return err
}

func (m *HTTPMailer) post(ctx context.Context, msg Message) error {
	body, err := json.Marshal(sendEmailRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ProviderError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
