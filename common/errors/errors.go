package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an application error. The set is closed.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindConflict          Kind = "conflict"
	KindInsufficientStock Kind = "insufficient_stock"
	KindNotFound          Kind = "not_found"
	KindStorage           Kind = "storage"
)

// Error represents an application error
type Error struct {
	Kind      Kind   `json:"kind"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	ProductID uint   `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	OrderID   uint   `json:"order_id,omitempty"`
	Err       error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps an error kind to the HTTP status the boundary responds with.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation, KindInsufficientStock:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Code: kind.StatusCode(), Message: message, Err: err}
}

// Validation reports structurally invalid input. Nothing was attempted against storage.
func Validation(message string) *Error {
	return newError(KindValidation, message, nil)
}

// Conflict reports that an order already exists for the payment reference.
func Conflict(orderID uint, paymentReference string) *Error {
	e := newError(KindConflict, fmt.Sprintf("order already exists for payment reference %s", paymentReference), nil)
	e.OrderID = orderID
	return e
}

// InsufficientStock reports a line item that could not be reserved, either
// because the product is missing or because stock is short.
func InsufficientStock(productID uint, requested int) *Error {
	e := newError(KindInsufficientStock, fmt.Sprintf("insufficient stock for product %d", productID), nil)
	e.ProductID = productID
	e.Requested = requested
	return e
}

// NotFound reports an absent entity on a read or status update.
func NotFound(message string) *Error {
	return newError(KindNotFound, message, nil)
}

// Storage wraps an unexpected persistence-layer error.
func Storage(message string, err error) *Error {
	return newError(KindStorage, message, err)
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries an application error of the given kind.
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// Respond writes err as a JSON response. Storage failures and unknown
// errors are rendered with a generic message.
func Respond(c *gin.Context, err error) {
	appErr, ok := As(err)
	if !ok || appErr.Kind == KindStorage {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"kind":  KindStorage,
			"error": "Internal server error",
		})
		return
	}

	body := gin.H{"kind": appErr.Kind, "error": appErr.Message}
	if appErr.OrderID != 0 {
		body["order_id"] = appErr.OrderID
	}
	if appErr.ProductID != 0 {
		body["product_id"] = appErr.ProductID
	}
	c.AbortWithStatusJSON(appErr.Code, body)
}

// Error middleware for Gin
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			Respond(c, c.Errors.Last().Err)
		}
	}
}
