package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "queenbee-api/common/errors"
	"queenbee-api/models"
	aws_pkg "queenbee-api/pkg/aws"
	"queenbee-api/repository"

	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentIntentAPI is the slice of the Stripe client used here.
type PaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// NewStripePaymentIntents returns a payment intent client bound to its own
// API key rather than the package-level stripe.Key.
func NewStripePaymentIntents(secretKey string) PaymentIntentAPI {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return sc.PaymentIntents
}

type PaymentIntentItem struct {
	ProductID uint `json:"product_id" validate:"required"`
	Quantity  int  `json:"quantity" validate:"required,gt=0"`
}

type CreatePaymentIntentInput struct {
	Items         []PaymentIntentItem `json:"items" validate:"required,min=1,dive"`
	CustomerEmail string              `json:"customer_email"`
}

type PaymentIntentResult struct {
	ID           string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, in *CreatePaymentIntentInput) (*PaymentIntentResult, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntentResult, error)
	ParseWebhook(payload []byte, signature string) (stripe.Event, error)
	HandleWebhookEvent(ctx context.Context, event stripe.Event) error
}

type paymentService struct {
	intents       PaymentIntentAPI
	webhookSecret string
	products      repository.ProductRepository
	orders        OrderService
	metrics       MetricsRecorder
	validate      *validator.Validate
	logger        *zap.Logger
}

func NewPaymentService(
	intents PaymentIntentAPI,
	webhookSecret string,
	products repository.ProductRepository,
	orders OrderService,
	metrics MetricsRecorder,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		intents:       intents,
		webhookSecret: webhookSecret,
		products:      products,
		orders:        orders,
		metrics:       metrics,
		validate:      newValidator(),
		logger:        logger,
	}
}

// CreatePaymentIntent prices the basket from current product prices and
// opens a Stripe payment intent for it. The stock check here is advisory;
// the order transaction makes the binding reservation.
func (s *paymentService) CreatePaymentIntent(ctx context.Context, in *CreatePaymentIntentInput) (*PaymentIntentResult, error) {
	if in == nil {
		return nil, apperrors.Validation("items is required")
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.Validation(validationMessage(err))
	}

	quantities := make(map[uint]int, len(in.Items))
	order := make([]uint, 0, len(in.Items))
	for _, item := range in.Items {
		if _, seen := quantities[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	var amount int64
	lines := make([]string, 0, len(order))
	for _, id := range order {
		qty := quantities[id]
		product, err := s.products.FindByID(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.InsufficientStock(id, qty)
		}
		if err != nil {
			return nil, apperrors.Storage("failed to price basket", err)
		}
		if !product.IsActive || product.StockQuantity < qty {
			return nil, apperrors.InsufficientStock(id, qty)
		}
		amount += product.Price * int64(qty)
		lines = append(lines, fmt.Sprintf("%dx%d", id, qty))
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(models.CurrencyNZD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("items", strings.Join(lines, ","))
	if email := normalizeEmail(in.CustomerEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
		params.AddMetadata("customer_email", email)
	}

	pi, err := s.intents.New(params)
	if err != nil {
		s.logger.Error("Stripe payment intent creation failed", zap.Int64("amount", amount), zap.Error(err))
		return nil, apperrors.Storage("payment provider request failed", err)
	}

	s.logger.Info("Payment intent created",
		zap.String("payment_intent_id", pi.ID),
		zap.Int64("amount", amount),
	)
	return intentResult(pi), nil
}

func (s *paymentService) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntentResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.Validation("payment_intent_id is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, apperrors.NotFound(fmt.Sprintf("payment intent %s not found", id))
		}
		return nil, apperrors.Storage("payment provider request failed", err)
	}

	result := intentResult(pi)
	result.ClientSecret = ""
	return result, nil
}

func intentResult(pi *stripe.PaymentIntent) *PaymentIntentResult {
	return &PaymentIntentResult{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Status:       string(pi.Status),
	}
}

func (s *paymentService) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// HandleWebhookEvent applies a verified Stripe event to the matching order.
// Events for payment references with no order yet are acknowledged.
func (s *paymentService) HandleWebhookEvent(ctx context.Context, event stripe.Event) error {
	s.logger.Info("Processing Stripe webhook",
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID),
	)

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return apperrors.Validation("malformed payment intent payload")
		}
		s.recordCount(ctx, aws_pkg.MetricPaymentSucceeded)
		return s.transition(ctx, pi.ID, models.OrderStatusPaid, models.OrderStatusPending)

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return apperrors.Validation("malformed payment intent payload")
		}
		s.recordCount(ctx, aws_pkg.MetricPaymentFailed)
		s.logger.Warn("Payment failed", zap.String("payment_intent_id", pi.ID))
		return nil

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return apperrors.Validation("malformed charge payload")
		}
		if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
			s.logger.Warn("Refunded charge has no payment intent", zap.String("charge_id", charge.ID))
			return nil
		}
		return s.transition(ctx, charge.PaymentIntent.ID, models.OrderStatusRefunded,
			models.OrderStatusPending, models.OrderStatusPaid, models.OrderStatusProcessing, models.OrderStatusCompleted)

	default:
		s.logger.Debug("Unhandled webhook event type", zap.String("event_type", string(event.Type)))
		return nil
	}
}

func (s *paymentService) transition(ctx context.Context, paymentReference string, to models.OrderStatus, from ...models.OrderStatus) error {
	order, err := s.orders.GetOrderByPaymentReference(ctx, paymentReference)
	if apperrors.IsKind(err, apperrors.KindNotFound) {
		s.logger.Info("No order for payment reference yet", zap.String("payment_reference", paymentReference))
		return nil
	}
	if err != nil {
		return err
	}

	if order.Status == to {
		return nil
	}
	allowed := false
	for _, st := range from {
		if order.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		s.logger.Info("Skipping webhook status change",
			zap.Uint("order_id", order.ID),
			zap.String("status", string(order.Status)),
			zap.String("requested", string(to)),
		)
		return nil
	}

	_, err = s.orders.UpdateOrderStatus(ctx, order.ID, string(to))
	return err
}

func (s *paymentService) recordCount(ctx context.Context, metric string) {
	if s.metrics == nil {
		return
	}
	if err := s.metrics.RecordCount(ctx, metric, map[string]string{"Provider": "stripe"}); err != nil {
		s.logger.Debug("Failed to record metric", zap.String("metric", metric), zap.Error(err))
	}
}
