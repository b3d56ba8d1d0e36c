package models

import "time"

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is published to SNS and Kafka after an order change commits.
type OrderEvent struct {
	Type             string      `json:"type"`
	OrderID          uint        `json:"order_id"`
	OrderReference   string      `json:"order_reference"`
	CustomerEmail    string      `json:"customer_email"`
	Status           OrderStatus `json:"status"`
	PreviousStatus   OrderStatus `json:"previous_status,omitempty"`
	TotalAmount      int64       `json:"total_amount"`
	Currency         string      `json:"currency"`
	PaymentReference string      `json:"payment_reference"`
	ItemCount        int         `json:"item_count,omitempty"`
	OccurredAt       time.Time   `json:"occurred_at"`
}

func NewOrderEvent(eventType string, order *Order) OrderEvent {
	return OrderEvent{
		Type:             eventType,
		OrderID:          order.ID,
		OrderReference:   order.OrderReference,
		CustomerEmail:    order.CustomerEmail,
		Status:           order.Status,
		TotalAmount:      order.TotalAmount,
		Currency:         order.Currency,
		PaymentReference: order.PaymentReference,
		ItemCount:        len(order.Items),
		OccurredAt:       time.Now().UTC(),
	}
}
