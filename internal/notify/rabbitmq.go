package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/custopay/transfer-relay/internal/model"
)

// event is the message payload published on terminal transitions.
type event struct {
	OwnerID   string        `json:"owner_id"`
	Outcome   Outcome       `json:"outcome"`
	Summary   model.Summary `json:"summary"`
	Timestamp time.Time     `json:"timestamp"`
}

// RabbitDispatcher publishes terminal-state events to a RabbitMQ exchange.
type RabbitDispatcher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *zap.Logger
}

// NewRabbitDispatcher connects to RabbitMQ and declares the target exchange.
func NewRabbitDispatcher(amqpURL, exchange string, logger *zap.Logger) (*RabbitDispatcher, error) {
	conn, err := amqp091.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	return &RabbitDispatcher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger.Named("notify"),
	}, nil
}

// Notify publishes the event. Failures are logged, never returned.
func (d *RabbitDispatcher) Notify(ctx context.Context, ownerID string, summary model.Summary, outcome Outcome) {
	body, err := json.Marshal(event{
		OwnerID:   ownerID,
		Outcome:   outcome,
		Summary:   summary,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		d.logger.Warn("failed to marshal notification event", zap.Error(err))
		return
	}

	routingKey := "transfer." + string(outcome)
	err = d.channel.PublishWithContext(ctx, d.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	})
	if err != nil {
		d.logger.Warn("failed to publish notification event",
			zap.String("owner_id", ownerID),
			zap.String("reference", summary.Reference),
			zap.Error(err),
		)
	}
}

// Close shuts down the channel and connection.
func (d *RabbitDispatcher) Close() {
	if d.channel != nil {
		d.channel.Close()
	}
	if d.conn != nil {
		d.conn.Close()
	}
}

// NopDispatcher is a minimal no-op dispatcher used when RabbitMQ is
// unavailable at startup. The service keeps moving money; only the
// notification side degrades.
type NopDispatcher struct {
	Logger *zap.Logger
}

func (d *NopDispatcher) Notify(ctx context.Context, ownerID string, summary model.Summary, outcome Outcome) {
	if d.Logger != nil {
		d.Logger.Warn("notification skipped: dispatcher in fallback mode",
			zap.String("owner_id", ownerID),
			zap.String("reference", summary.Reference),
		)
	}
}

func (d *NopDispatcher) Close() {}
