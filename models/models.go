package models

import (
	"fmt"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// CurrencyNZD is the only currency orders are taken in.
const CurrencyNZD = "NZD"

// AllOrderStatuses lists every recognised status in lifecycle order.
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusProcessing,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// ParseOrderStatus accepts any recognised status, case-insensitively.
func ParseOrderStatus(s string) (OrderStatus, error) {
	candidate := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range AllOrderStatuses {
		if st == candidate {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", s)
}

type Customer struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Email       string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	DisplayName string    `gorm:"type:varchar(255)" json:"display_name"`
	Phone       *string   `gorm:"type:varchar(50)" json:"phone,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Product struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Title         string    `gorm:"type:varchar(255);not null" json:"title"`
	Description   string    `gorm:"type:text" json:"description"`
	Price         int64     `gorm:"not null;check:chk_products_price,price >= 0" json:"price"`
	StockQuantity int       `gorm:"not null;default:0;check:chk_products_stock,stock_quantity >= 0" json:"stock_quantity"`
	ImageURL      string    `gorm:"type:varchar(512)" json:"image_url,omitempty"`
	IsActive      bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Order struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	OrderReference   string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_reference"`
	CustomerID       uint        `gorm:"not null;index" json:"customer_id"`
	Customer         *Customer   `gorm:"foreignKey:CustomerID;constraint:OnDelete:RESTRICT" json:"-"`
	CustomerEmail    string      `gorm:"type:varchar(255);not null;index" json:"customer_email"`
	CustomerName     string      `gorm:"type:varchar(255)" json:"customer_name,omitempty"`
	Status           OrderStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	TotalAmount      int64       `gorm:"not null" json:"total_amount"`
	Currency         string      `gorm:"type:varchar(3);not null;default:'NZD'" json:"currency"`
	PaymentReference string      `gorm:"type:varchar(255);uniqueIndex;not null" json:"payment_reference"`
	CreatedAt        time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	Items            []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
}

type OrderItem struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	OrderID              uint      `gorm:"not null;index" json:"order_id"`
	ProductID            uint      `gorm:"not null;index" json:"product_id"`
	Product              *Product  `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT" json:"-"`
	ProductTitleSnapshot string    `gorm:"type:varchar(255)" json:"product_title"`
	Quantity             int       `gorm:"not null;check:chk_order_items_quantity,quantity > 0" json:"quantity"`
	UnitPrice            int64     `gorm:"not null" json:"unit_price"`
	LineTotal            int64     `gorm:"not null" json:"line_total"`
	CreatedAt            time.Time `json:"created_at"`
}

// OrderSummary is an order header plus the number of line items it holds.
type OrderSummary struct {
	ID               uint        `json:"id"`
	OrderReference   string      `json:"order_reference"`
	CustomerEmail    string      `json:"customer_email"`
	Status           OrderStatus `json:"status"`
	TotalAmount      int64       `json:"total_amount"`
	Currency         string      `json:"currency"`
	PaymentReference string      `json:"payment_reference"`
	ItemCount        int64       `json:"item_count"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// OrderTotals is the raw aggregate read from storage.
type OrderTotals struct {
	TotalOrders  int64
	TotalRevenue int64
	StatusCounts map[OrderStatus]int64
}

type OrderStats struct {
	TotalOrders       int64                 `json:"total_orders"`
	TotalRevenue      int64                 `json:"total_revenue"`
	AverageOrderValue int64                 `json:"average_order_value"`
	StatusCounts      map[OrderStatus]int64 `json:"status_counts"`
	StartDate         *time.Time            `json:"start_date,omitempty"`
	EndDate           *time.Time            `json:"end_date,omitempty"`
}
