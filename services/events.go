package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

const InterviewCompletedRoutingKey = "interview.completed"

// CompletionEvent is published once an interview session has ended.
type CompletionEvent struct {
	InterviewID      string    `json:"interviewId"`
	UserID           string    `json:"userId"`
	Reason           string    `json:"reason"`
	TimeTakenSeconds int       `json:"timeTakenSeconds"`
	OverallScore     int       `json:"overallScore"`
	Source           string    `json:"source,omitempty"`
	CompletedAt      time.Time `json:"completedAt"`
}

type EventPublisher interface {
	PublishInterviewCompleted(ctx context.Context, event CompletionEvent) error
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishInterviewCompleted(context.Context, CompletionEvent) error { return nil }

// amqpChannel is the subset of *amqp.Channel the publisher uses.
type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes completion events to a durable topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	metrics  *Metrics
}

func NewAMQPPublisher(url, exchange string, metrics *Metrics) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	slog.Info("Connected to AMQP broker", "exchange", exchange)
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange, metrics: metrics}, nil
}

func (p *AMQPPublisher) PublishInterviewCompleted(ctx context.Context, event CompletionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.metrics.recordEvent("failed")
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(
		p.exchange,
		InterviewCompletedRoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.New().String(),
			Timestamp:    event.CompletedAt,
			Body:         body,
		},
	)
	if err != nil {
		p.metrics.recordEvent("failed")
		return fmt.Errorf("failed to publish completion event: %w", err)
	}

	p.metrics.recordEvent("published")
	slog.Info("Published completion event", "interview_id", event.InterviewID, "exchange", p.exchange)
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			slog.Warn("Failed to close AMQP channel", "error", err)
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
