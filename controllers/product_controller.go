package controllers

import (
	"net/http"

	"queenbee-api/services"

	"github.com/gin-gonic/gin"
)

type ProductController struct {
	productService services.ProductService
}

func NewProductController(svc services.ProductService) *ProductController {
	return &ProductController{productService: svc}
}

// ListProducts handles GET /api/products
func (pc *ProductController) ListProducts(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}

	result, err := pc.productService.ListProducts(c.Request.Context(), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetProduct handles GET /api/products/:id
func (pc *ProductController) GetProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	product, err := pc.productService.GetProduct(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}
