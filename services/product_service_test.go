package services_test

import (
	"context"
	"errors"
	"net"
	"testing"

	apperrors "queenbee-api/common/errors"
	"queenbee-api/models"
	aws_pkg "queenbee-api/pkg/aws"
	"queenbee-api/services"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: "localhost:0",
		Dialer: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return nil, errors.New("redis disabled in tests")
		},
		MaxRetries: -1,
	})
}

type mapCache struct {
	products map[uint]models.Product
	lists    map[[2]int]*services.ProductListResult
	hits     int
}

func newMapCache() *mapCache {
	return &mapCache{products: map[uint]models.Product{}, lists: map[[2]int]*services.ProductListResult{}}
}

func (c *mapCache) InvalidateProducts(_ context.Context, ids ...uint) {
	for _, id := range ids {
		delete(c.products, id)
	}
	c.lists = map[[2]int]*services.ProductListResult{}
}

func (c *mapCache) GetProduct(_ context.Context, id uint) (*models.Product, bool) {
	p, ok := c.products[id]
	if ok {
		c.hits++
	}
	return &p, ok
}

func (c *mapCache) SetProduct(_ context.Context, p *models.Product) { c.products[p.ID] = *p }

func (c *mapCache) GetProductList(_ context.Context, limit, offset int) (*services.ProductListResult, bool) {
	r, ok := c.lists[[2]int{limit, offset}]
	if ok {
		c.hits++
	}
	return r, ok
}

func (c *mapCache) SetProductList(_ context.Context, limit, offset int, r *services.ProductListResult) {
	c.lists[[2]int{limit, offset}] = r
}

func seedCatalogue(store *memStore) {
	store.addProduct(models.Product{ID: 1, Title: "Dragon", Price: 1500, StockQuantity: 10, IsActive: true})
	store.addProduct(models.Product{ID: 2, Title: "Honey Pillar", Price: 2500, StockQuantity: 0, IsActive: true})
	store.addProduct(models.Product{ID: 3, Title: "Retired", Price: 900, StockQuantity: 5, IsActive: false})
	store.addProduct(models.Product{ID: 4, Title: "Beeswax Tealight", Price: 500, StockQuantity: 50, IsActive: true})
}

func TestGetProduct_WithUnavailableRedis(t *testing.T) {
	store := newMemStore()
	seedCatalogue(store)
	metrics := &countingMetrics{}
	cache := services.NewCacheManager(newTestRedisClient(), 0, metrics, zap.NewNop())
	svc := services.NewProductService(store.Products(), cache, zap.NewNop())

	product, err := svc.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Dragon", product.Title)

	assert.Equal(t, 1, metrics.count(aws_pkg.MetricCacheMisses))

	_, err = svc.GetProduct(context.Background(), 3)
	requireKind(t, err, apperrors.KindNotFound)

	_, err = svc.GetProduct(context.Background(), 99)
	requireKind(t, err, apperrors.KindNotFound)

	assert.NotPanics(t, func() { cache.InvalidateProducts(context.Background(), 1, 4) })
}

func TestListProducts_ActiveOnlyAndPaginated(t *testing.T) {
	store := newMemStore()
	seedCatalogue(store)
	svc := services.NewProductService(store.Products(), nil, zap.NewNop())

	result, err := svc.ListProducts(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, result.Products, 2)
	assert.Equal(t, uint(1), result.Products[0].ID)
	assert.Equal(t, uint(2), result.Products[1].ID)
	assert.Equal(t, int64(3), result.Meta.Total)
	assert.True(t, result.Meta.HasMore)

	result, err = svc.ListProducts(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, result.Products, 1)
	assert.Equal(t, uint(4), result.Products[0].ID)
	assert.False(t, result.Meta.HasMore)

	result, err = svc.ListProducts(context.Background(), 10, 40)
	require.NoError(t, err)
	assert.NotNil(t, result.Products)
	assert.Empty(t, result.Products)
}

func TestProductService_ServesFromCache(t *testing.T) {
	store := newMemStore()
	seedCatalogue(store)
	cache := newMapCache()
	svc := services.NewProductService(store.Products(), cache, zap.NewNop())

	_, err := svc.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	calls := store.callCount()

	product, err := svc.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Dragon", product.Title)
	assert.Equal(t, calls, store.callCount())

	_, err = svc.ListProducts(context.Background(), 10, 0)
	require.NoError(t, err)
	calls = store.callCount()
	_, err = svc.ListProducts(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, calls, store.callCount())
	assert.Equal(t, 2, cache.hits)
}

func TestCreateOrder_InvalidatesCachedStock(t *testing.T) {
	store := newMemStore()
	seedCatalogue(store)
	cache := newMapCache()
	products := services.NewProductService(store.Products(), cache, zap.NewNop())
	orders := services.NewOrderService(store, nil, cache, nil, zap.NewNop())

	before, err := products.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 10, before.StockQuantity)

	_, err = orders.CreateOrder(context.Background(), dragonOrder("pi_cache"))
	require.NoError(t, err)

	after, err := products.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 8, after.StockQuantity)
}
