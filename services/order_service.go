package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	apperrors "queenbee-api/common/errors"
	"queenbee-api/models"
	aws_pkg "queenbee-api/pkg/aws"
	"queenbee-api/repository"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type CreateOrderItemInput struct {
	ProductID     uint   `json:"product_id" validate:"required"`
	Quantity      int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice     int64  `json:"unit_price" validate:"required,gt=0"`
	TitleSnapshot string `json:"title_snapshot"`
}

type CreateOrderInput struct {
	CustomerEmail    string                 `json:"customer_email" validate:"required"`
	CustomerName     string                 `json:"customer_name"`
	CustomerPhone    string                 `json:"customer_phone"`
	Items            []CreateOrderItemInput `json:"items" validate:"required,min=1,dive"`
	PaymentReference string                 `json:"payment_reference" validate:"required"`
	TotalAmount      int64                  `json:"total_amount" validate:"required,gt=0"`
	Status           string                 `json:"status"`
}

type ListOrdersParams struct {
	Limit  int
	Offset int
	Status string
}

type ListMeta struct {
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"has_more"`
}

type OrderListResult struct {
	Orders []models.Order `json:"orders"`
	Meta   ListMeta       `json:"meta"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, in *CreateOrderInput) (*models.Order, error)
	GetOrderByID(ctx context.Context, id uint) (*models.Order, error)
	GetOrdersByCustomerEmail(ctx context.Context, email string) ([]models.OrderSummary, error)
	GetOrderByPaymentReference(ctx context.Context, ref string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id uint, status string) (*models.Order, error)
	ListOrders(ctx context.Context, params ListOrdersParams) (*OrderListResult, error)
	GetOrderStats(ctx context.Context, start, end *time.Time) (*models.OrderStats, error)
}

// MetricsRecorder is the subset of the CloudWatch client the services use.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordValue(ctx context.Context, metricName string, value float64, dimensions map[string]string) error
}

// ProductCacheInvalidator drops cached product reads after stock changes.
type ProductCacheInvalidator interface {
	InvalidateProducts(ctx context.Context, ids ...uint)
}

type orderService struct {
	store    repository.Store
	events   OrderEventPublisher
	cache    ProductCacheInvalidator
	metrics  MetricsRecorder
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrderService wires the order transaction manager and query service.
// events, cache and metrics are optional.
func NewOrderService(
	store repository.Store,
	events OrderEventPublisher,
	cache ProductCacheInvalidator,
	metrics MetricsRecorder,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		store:    store,
		events:   events,
		cache:    cache,
		metrics:  metrics,
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid order input"
	}

	fe := fieldErrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must contain at least %s entry", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type createOrderRequest struct {
	CreateOrderInput
	status models.OrderStatus
}

func (s *orderService) prepareCreate(in *CreateOrderInput) (*createOrderRequest, error) {
	if in == nil {
		return nil, apperrors.Validation("order input is required")
	}

	req := &createOrderRequest{CreateOrderInput: *in, status: models.OrderStatusPending}
	req.CustomerEmail = normalizeEmail(in.CustomerEmail)
	req.CustomerName = strings.TrimSpace(in.CustomerName)
	req.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	req.PaymentReference = strings.TrimSpace(in.PaymentReference)

	if err := s.validate.Struct(&req.CreateOrderInput); err != nil {
		return nil, apperrors.Validation(validationMessage(err))
	}

	if in.Status != "" {
		status, err := models.ParseOrderStatus(in.Status)
		if err != nil {
			return nil, apperrors.Validation(err.Error())
		}
		req.status = status
	}
	return req, nil
}

func (s *orderService) CreateOrder(ctx context.Context, in *CreateOrderInput) (*models.Order, error) {
	req, err := s.prepareCreate(in)
	if err != nil {
		s.recordCount(ctx, aws_pkg.MetricOrdersFailed, map[string]string{"Reason": string(apperrors.KindValidation)})
		return nil, err
	}

	var lineSum int64
	for _, item := range req.Items {
		lineSum += int64(item.Quantity) * item.UnitPrice
	}
	if lineSum != req.TotalAmount {
		s.logger.Warn("Order total differs from sum of line totals",
			zap.String("payment_reference", req.PaymentReference),
			zap.Int64("total_amount", req.TotalAmount),
			zap.Int64("line_sum", lineSum),
		)
	}

	existing, err := s.store.Orders().FindByPaymentReference(ctx, req.PaymentReference)
	if err == nil {
		s.logger.Info("Duplicate order for payment reference",
			zap.String("payment_reference", req.PaymentReference),
			zap.Uint("existing_order_id", existing.ID),
		)
		return nil, apperrors.Conflict(existing.ID, req.PaymentReference)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Storage("failed to check for existing order", err)
	}

	var orderID uint
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		customer, err := s.upsertCustomer(ctx, tx.Customers(), req)
		if err != nil {
			return err
		}

		customerName := req.CustomerName
		if customerName == "" {
			customerName = customer.DisplayName
		}

		order := &models.Order{
			OrderReference:   NewOrderReference(s.now()),
			CustomerID:       customer.ID,
			CustomerEmail:    customer.Email,
			CustomerName:     customerName,
			Status:           req.status,
			TotalAmount:      req.TotalAmount,
			Currency:         models.CurrencyNZD,
			PaymentReference: req.PaymentReference,
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}

		for _, item := range req.Items {
			if err := s.reserveLineItem(ctx, tx, order.ID, item); err != nil {
				return err
			}
		}

		orderID = order.ID
		return nil
	})
	if err != nil {
		return nil, s.createFailure(ctx, req.PaymentReference, err)
	}

	order, err := s.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		zap.Uint("order_id", order.ID),
		zap.String("order_reference", order.OrderReference),
		zap.String("payment_reference", order.PaymentReference),
		zap.Int64("total_amount", order.TotalAmount),
		zap.Int("items", len(order.Items)),
	)
	s.afterCreate(ctx, order)
	return order, nil
}

func (s *orderService) upsertCustomer(ctx context.Context, customers repository.CustomerRepository, req *createOrderRequest) (*models.Customer, error) {
	customer, err := customers.FindByEmail(ctx, req.CustomerEmail)
	if err == nil {
		if req.CustomerName != "" && req.CustomerName != customer.DisplayName {
			if err := customers.UpdateDisplayName(ctx, customer.ID, req.CustomerName); err != nil {
				return nil, err
			}
			customer.DisplayName = req.CustomerName
		}
		return customer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	customer = &models.Customer{
		Email:       req.CustomerEmail,
		DisplayName: req.CustomerName,
	}
	if req.CustomerPhone != "" {
		phone := req.CustomerPhone
		customer.Phone = &phone
	}
	// A concurrent first order for the same email may have inserted the row
	// since the lookup; Upsert hands back that row instead of failing.
	if err := customers.Upsert(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *orderService) reserveLineItem(ctx context.Context, tx repository.Store, orderID uint, item CreateOrderItemInput) error {
	title := strings.TrimSpace(item.TitleSnapshot)
	if title == "" {
		product, err := tx.Products().FindByID(ctx, item.ProductID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.InsufficientStock(item.ProductID, item.Quantity)
		}
		if err != nil {
			return err
		}
		title = product.Title
	}

	line := &models.OrderItem{
		OrderID:              orderID,
		ProductID:            item.ProductID,
		ProductTitleSnapshot: title,
		Quantity:             item.Quantity,
		UnitPrice:            item.UnitPrice,
		LineTotal:            int64(item.Quantity) * item.UnitPrice,
	}
	if err := tx.Orders().CreateItem(ctx, line); err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return apperrors.InsufficientStock(item.ProductID, item.Quantity)
		}
		return err
	}

	ok, err := tx.Products().DecrementStock(ctx, item.ProductID, item.Quantity)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.InsufficientStock(item.ProductID, item.Quantity)
	}
	return nil
}

// createFailure converts an error that aborted the order transaction into
// the application taxonomy. The transaction has already been rolled back.
func (s *orderService) createFailure(ctx context.Context, paymentReference string, err error) error {
	if appErr, ok := apperrors.As(err); ok {
		s.logger.Info("Order rejected",
			zap.String("payment_reference", paymentReference),
			zap.String("kind", string(appErr.Kind)),
			zap.Uint("product_id", appErr.ProductID),
		)
		s.recordCount(ctx, aws_pkg.MetricOrdersFailed, map[string]string{"Reason": string(appErr.Kind)})
		return appErr
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, lookupErr := s.store.Orders().FindByPaymentReference(ctx, paymentReference)
		if lookupErr == nil {
			s.logger.Info("Concurrent order for payment reference lost the race",
				zap.String("payment_reference", paymentReference),
				zap.Uint("existing_order_id", existing.ID),
			)
			return apperrors.Conflict(existing.ID, paymentReference)
		}
	}

	s.logger.Error("Order transaction failed",
		zap.String("payment_reference", paymentReference),
		zap.Error(err),
	)
	s.recordCount(ctx, aws_pkg.MetricOrdersFailed, map[string]string{"Reason": string(apperrors.KindStorage)})
	return apperrors.Storage("failed to create order", err)
}

func (s *orderService) afterCreate(ctx context.Context, order *models.Order) {
	s.recordCount(ctx, aws_pkg.MetricOrdersCreated, nil)
	if s.metrics != nil {
		if err := s.metrics.RecordValue(ctx, aws_pkg.MetricOrderAmount, float64(order.TotalAmount), map[string]string{"Currency": order.Currency}); err != nil {
			s.logger.Debug("Failed to record order amount", zap.Error(err))
		}
	}

	if s.cache != nil {
		ids := make([]uint, 0, len(order.Items))
		for _, item := range order.Items {
			ids = append(ids, item.ProductID)
		}
		s.cache.InvalidateProducts(ctx, ids...)
	}

	if s.events != nil {
		s.events.PublishOrderEvent(ctx, models.NewOrderEvent(models.EventOrderCreated, order))
	}
}

func (s *orderService) recordCount(ctx context.Context, metric string, dims map[string]string) {
	if s.metrics == nil {
		return
	}
	if err := s.metrics.RecordCount(ctx, metric, dims); err != nil {
		s.logger.Debug("Failed to record metric", zap.String("metric", metric), zap.Error(err))
	}
}

func (s *orderService) GetOrderByID(ctx context.Context, id uint) (*models.Order, error) {
	order, err := s.store.Orders().FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound(fmt.Sprintf("order %d not found", id))
	}
	if err != nil {
		return nil, apperrors.Storage("failed to fetch order", err)
	}
	return order, nil
}

func (s *orderService) GetOrdersByCustomerEmail(ctx context.Context, email string) ([]models.OrderSummary, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperrors.Validation("customer_email is required")
	}

	summaries, err := s.store.Orders().FindByCustomerEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Storage("failed to fetch customer orders", err)
	}
	if summaries == nil {
		summaries = []models.OrderSummary{}
	}
	return summaries, nil
}

func (s *orderService) GetOrderByPaymentReference(ctx context.Context, ref string) (*models.Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperrors.Validation("payment_reference is required")
	}

	order, err := s.store.Orders().FindByPaymentReference(ctx, ref)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound(fmt.Sprintf("no order for payment reference %s", ref))
	}
	if err != nil {
		return nil, apperrors.Storage("failed to fetch order", err)
	}
	return order, nil
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, id uint, status string) (*models.Order, error) {
	newStatus, err := models.ParseOrderStatus(status)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	current, err := s.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Orders().UpdateStatus(ctx, id, newStatus)
	if err != nil {
		return nil, apperrors.Storage("failed to update order status", err)
	}
	if !updated {
		return nil, apperrors.NotFound(fmt.Sprintf("order %d not found", id))
	}

	order, err := s.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order status updated",
		zap.Uint("order_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(newStatus)),
	)

	if s.events != nil && current.Status != newStatus {
		evt := models.NewOrderEvent(models.EventOrderStatusChanged, order)
		evt.PreviousStatus = current.Status
		s.events.PublishOrderEvent(ctx, evt)
	}
	return order, nil
}

func clampListParams(limit, offset int) (int, int) {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *orderService) ListOrders(ctx context.Context, params ListOrdersParams) (*OrderListResult, error) {
	limit, offset := clampListParams(params.Limit, params.Offset)

	var status models.OrderStatus
	if params.Status != "" {
		parsed, err := models.ParseOrderStatus(params.Status)
		if err != nil {
			return nil, apperrors.Validation(err.Error())
		}
		status = parsed
	}

	orders, total, err := s.store.Orders().FindAll(ctx, limit, offset, status)
	if err != nil {
		return nil, apperrors.Storage("failed to list orders", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}

	return &OrderListResult{
		Orders: orders,
		Meta: ListMeta{
			Limit:   limit,
			Offset:  offset,
			Total:   total,
			HasMore: int64(offset+len(orders)) < total,
		},
	}, nil
}

func (s *orderService) GetOrderStats(ctx context.Context, start, end *time.Time) (*models.OrderStats, error) {
	if start != nil && end != nil && !end.After(*start) {
		return nil, apperrors.Validation("endDate must be after startDate")
	}

	totals, err := s.store.Orders().Totals(ctx, start, end)
	if err != nil {
		return nil, apperrors.Storage("failed to compute order stats", err)
	}

	stats := &models.OrderStats{
		TotalOrders:  totals.TotalOrders,
		TotalRevenue: totals.TotalRevenue,
		StatusCounts: make(map[models.OrderStatus]int64, len(models.AllOrderStatuses)),
		StartDate:    start,
		EndDate:      end,
	}
	for _, st := range models.AllOrderStatuses {
		stats.StatusCounts[st] = totals.StatusCounts[st]
	}
	if stats.TotalOrders > 0 {
		stats.AverageOrderValue = stats.TotalRevenue / stats.TotalOrders
	}
	return stats, nil
}
