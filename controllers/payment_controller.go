package controllers

import (
	"io"
	"net/http"

	apperrors "queenbee-api/common/errors"
	"queenbee-api/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 65536

type PaymentController struct {
	paymentService services.PaymentService
	logger         *zap.Logger
}

func NewPaymentController(svc services.PaymentService, logger *zap.Logger) *PaymentController {
	return &PaymentController{paymentService: svc, logger: logger}
}

// CreatePaymentIntent handles POST /api/payments/create-payment-intent
func (pc *PaymentController) CreatePaymentIntent(c *gin.Context) {
	var in services.CreatePaymentIntentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		_ = c.Error(apperrors.Validation("invalid request body"))
		return
	}

	result, err := pc.paymentService.CreatePaymentIntent(c.Request.Context(), &in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetPaymentIntent handles GET /api/payments/payment-intent/:id
func (pc *PaymentController) GetPaymentIntent(c *gin.Context) {
	result, err := pc.paymentService.GetPaymentIntent(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// StripeWebhook handles POST /api/payments/webhook. The raw body is needed
// for signature verification, so it is read before any binding.
func (pc *PaymentController) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	event, err := pc.paymentService.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		pc.logger.Warn("Stripe webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
		return
	}

	if err := pc.paymentService.HandleWebhookEvent(c.Request.Context(), event); err != nil {
		pc.logger.Error("Stripe webhook handling failed",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
