package models_test

import (
	"testing"

	"queenbee-api/models"

	"github.com/stretchr/testify/assert"
)

func TestParseOrderStatus(t *testing.T) {
	for _, st := range models.AllOrderStatuses {
		got, err := models.ParseOrderStatus(string(st))
		assert.NoError(t, err)
		assert.Equal(t, st, got)
	}

	got, err := models.ParseOrderStatus("  PAID ")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got)

	_, err = models.ParseOrderStatus("shipped")
	assert.Error(t, err)
	_, err = models.ParseOrderStatus("")
	assert.Error(t, err)
}

func TestNewOrderEvent(t *testing.T) {
	order := &models.Order{
		ID:               3,
		OrderReference:   "QB-20260101120000-ABCDEF12",
		CustomerEmail:    "a@b.com",
		Status:           models.OrderStatusPending,
		TotalAmount:      3000,
		Currency:         models.CurrencyNZD,
		PaymentReference: "pi_1",
		Items:            []models.OrderItem{{ProductID: 1, Quantity: 2}},
	}

	evt := models.NewOrderEvent(models.EventOrderCreated, order)
	assert.Equal(t, "order.created", evt.Type)
	assert.Equal(t, uint(3), evt.OrderID)
	assert.Equal(t, 1, evt.ItemCount)
	assert.Equal(t, "pi_1", evt.PaymentReference)
	assert.False(t, evt.OccurredAt.IsZero())
}
