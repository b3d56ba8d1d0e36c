package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "queenbee-api/common/errors"
	"queenbee-api/services"

	"github.com/gin-gonic/gin"
)

// OrderController exposes order creation and the order queries over HTTP.
type OrderController struct {
	orderService services.OrderService
}

func NewOrderController(svc services.OrderService) *OrderController {
	return &OrderController{orderService: svc}
}

type createOrderItemRequest struct {
	ProductID     uint   `json:"product_id"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unit_price"`
	TitleSnapshot string `json:"title_snapshot"`
}

type createOrderRequest struct {
	CustomerEmail    string                   `json:"customer_email" binding:"required,email"`
	CustomerName     string                   `json:"customer_name"`
	CustomerPhone    string                   `json:"customer_phone"`
	Items            []createOrderItemRequest `json:"items"`
	PaymentReference string                   `json:"payment_reference"`
	TotalAmount      int64                    `json:"total_amount"`
	Status           string                   `json:"status"`
}

func (r *createOrderRequest) toInput() *services.CreateOrderInput {
	in := &services.CreateOrderInput{
		CustomerEmail:    r.CustomerEmail,
		CustomerName:     r.CustomerName,
		CustomerPhone:    r.CustomerPhone,
		PaymentReference: r.PaymentReference,
		TotalAmount:      r.TotalAmount,
		Status:           r.Status,
	}
	if r.Items != nil {
		in.Items = make([]services.CreateOrderItemInput, 0, len(r.Items))
	}
	for _, item := range r.Items {
		in.Items = append(in.Items, services.CreateOrderItemInput{
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			TitleSnapshot: item.TitleSnapshot,
		})
	}
	return in
}

// CreateOrder handles POST /api/orders
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Validation("customer_email must be a valid email and the body valid JSON"))
		return
	}

	order, err := oc.orderService.CreateOrder(c.Request.Context(), req.toInput())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// GetOrderByID handles GET /api/orders/:id
func (oc *OrderController) GetOrderByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	order, err := oc.orderService.GetOrderByID(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// GetOrdersByCustomerEmail handles GET /api/orders/customer/:email
func (oc *OrderController) GetOrdersByCustomerEmail(c *gin.Context) {
	orders, err := oc.orderService.GetOrdersByCustomerEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// GetOrderByPaymentReference handles GET /api/orders/payment-intent/:ref
func (oc *OrderController) GetOrderByPaymentReference(c *gin.Context) {
	order, err := oc.orderService.GetOrderByPaymentReference(c.Request.Context(), c.Param("ref"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// ListOrders handles GET /api/orders (admin)
func (oc *OrderController) ListOrders(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}

	result, err := oc.orderService.ListOrders(c.Request.Context(), services.ListOrdersParams{
		Limit:  limit,
		Offset: offset,
		Status: c.Query("status"),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetOrderStats handles GET /api/orders/admin/stats (admin)
func (oc *OrderController) GetOrderStats(c *gin.Context) {
	start, err := parseDate(c.Query("startDate"))
	if err != nil {
		_ = c.Error(apperrors.Validation("startDate must be RFC3339 or YYYY-MM-DD"))
		return
	}
	end, err := parseDate(c.Query("endDate"))
	if err != nil {
		_ = c.Error(apperrors.Validation("endDate must be RFC3339 or YYYY-MM-DD"))
		return
	}

	stats, err := oc.orderService.GetOrderStats(c.Request.Context(), start, end)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateOrderStatus handles PATCH /api/orders/:id/status (admin)
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Validation("status is required"))
		return
	}

	order, err := oc.orderService.UpdateOrderStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		_ = c.Error(apperrors.Validation("id must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}

// parsePagination reads limit and offset, defaulting limit to 20. Range
// clamping is left to the services.
func parsePagination(c *gin.Context) (int, int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultListLimit)))
	if err != nil {
		_ = c.Error(apperrors.Validation("limit must be an integer"))
		return 0, 0, false
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		_ = c.Error(apperrors.Validation("offset must be an integer"))
		return 0, 0, false
	}
	return limit, offset, true
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
