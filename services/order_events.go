package services

import (
	"context"
	"encoding/json"
	"strconv"

	"queenbee-api/models"
	aws_pkg "queenbee-api/pkg/aws"

	"go.uber.org/zap"
)

// OrderEventPublisher announces committed order changes. Publishing is
// best-effort: failures are logged and never returned to the caller.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, evt models.OrderEvent)
}

// MessageProducer writes a keyed message to a stream.
type MessageProducer interface {
	Publish(ctx context.Context, key, value []byte) error
}

type orderEventPublisher struct {
	sns      aws_pkg.SNSPublisher
	topicArn string
	producer MessageProducer
	logger   *zap.Logger
}

// NewOrderEventPublisher fans events out to SNS and Kafka. Either sink may
// be nil, in which case it is skipped.
func NewOrderEventPublisher(sns aws_pkg.SNSPublisher, topicArn string, producer MessageProducer, logger *zap.Logger) OrderEventPublisher {
	return &orderEventPublisher{
		sns:      sns,
		topicArn: topicArn,
		producer: producer,
		logger:   logger,
	}
}

func (p *orderEventPublisher) PublishOrderEvent(ctx context.Context, evt models.OrderEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("Failed to marshal order event", zap.String("type", evt.Type), zap.Error(err))
		return
	}

	if p.sns != nil && p.topicArn != "" {
		if err := p.sns.Publish(ctx, p.topicArn, payload, map[string]string{"event_type": evt.Type}); err != nil {
			p.logger.Warn("SNS publish failed",
				zap.String("type", evt.Type),
				zap.Uint("order_id", evt.OrderID),
				zap.Error(err),
			)
		}
	}

	if p.producer != nil {
		key := []byte(strconv.FormatUint(uint64(evt.OrderID), 10))
		if err := p.producer.Publish(ctx, key, payload); err != nil {
			p.logger.Warn("Kafka publish failed",
				zap.String("type", evt.Type),
				zap.Uint("order_id", evt.OrderID),
				zap.Error(err),
			)
		}
	}

	p.logger.Debug("Order event published", zap.String("type", evt.Type), zap.Uint("order_id", evt.OrderID))
}
