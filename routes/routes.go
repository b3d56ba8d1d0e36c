package routes

import (
	"queenbee-api/controllers"

	"github.com/gin-gonic/gin"
)

// Handlers groups the controllers and guards mounted under /api.
type Handlers struct {
	Orders   *controllers.OrderController
	Products *controllers.ProductController
	Payments *controllers.PaymentController

	// RateLimit guards order and payment intent creation.
	RateLimit gin.HandlerFunc
	// Admin guards the dashboard endpoints.
	Admin gin.HandlerFunc
}

func RegisterRoutes(r *gin.Engine, h Handlers) {
	api := r.Group("/api")

	orders := api.Group("/orders")
	orders.POST("", h.RateLimit, h.Orders.CreateOrder)
	orders.GET("/:id", h.Orders.GetOrderByID)
	orders.GET("/customer/:email", h.Orders.GetOrdersByCustomerEmail)
	orders.GET("/payment-intent/:ref", h.Orders.GetOrderByPaymentReference)

	orders.GET("", h.Admin, h.Orders.ListOrders)
	orders.GET("/admin/stats", h.Admin, h.Orders.GetOrderStats)
	orders.PATCH("/:id/status", h.Admin, h.Orders.UpdateOrderStatus)

	products := api.Group("/products")
	products.GET("", h.Products.ListProducts)
	products.GET("/:id", h.Products.GetProduct)

	payments := api.Group("/payments")
	payments.POST("/create-payment-intent", h.RateLimit, h.Payments.CreatePaymentIntent)
	payments.GET("/payment-intent/:id", h.Payments.GetPaymentIntent)
	payments.POST("/webhook", h.Payments.StripeWebhook)
}
