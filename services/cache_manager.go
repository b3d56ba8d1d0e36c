package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"queenbee-api/models"
	aws_pkg "queenbee-api/pkg/aws"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ProductCachePrefix     = "product:detail:"
	ProductListCachePrefix = "products:v:"
	CacheVersionKey        = "products:version"

	DefaultCacheTTL = 5 * time.Minute
)

// ProductCache is the read-through cache in front of product reads.
type ProductCache interface {
	ProductCacheInvalidator
	GetProduct(ctx context.Context, id uint) (*models.Product, bool)
	SetProduct(ctx context.Context, product *models.Product)
	GetProductList(ctx context.Context, limit, offset int) (*ProductListResult, bool)
	SetProductList(ctx context.Context, limit, offset int, result *ProductListResult)
}

// CacheManager caches product details by id and product list pages under a
// version number. Bumping the version orphans every cached page at once.
type CacheManager struct {
	redis   *redis.Client
	ttl     time.Duration
	metrics MetricsRecorder
	logger  *zap.Logger
}

// NewCacheManager returns a product cache backed by client. metrics may be
// nil.
func NewCacheManager(client *redis.Client, ttl time.Duration, metrics MetricsRecorder, logger *zap.Logger) *CacheManager {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CacheManager{redis: client, ttl: ttl, metrics: metrics, logger: logger}
}

func (cm *CacheManager) recordLookup(ctx context.Context, kind string, hit bool) {
	if cm.metrics == nil {
		return
	}
	metric := aws_pkg.MetricCacheMisses
	if hit {
		metric = aws_pkg.MetricCacheHits
	}
	_ = cm.metrics.RecordCount(ctx, metric, map[string]string{"Cache": kind})
}

func productKey(id uint) string {
	return ProductCachePrefix + strconv.FormatUint(uint64(id), 10)
}

func (cm *CacheManager) GetProduct(ctx context.Context, id uint) (*models.Product, bool) {
	data, err := cm.redis.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			cm.logger.Debug("Product cache read failed", zap.Uint("product_id", id), zap.Error(err))
		}
		cm.recordLookup(ctx, "product", false)
		return nil, false
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		cm.logger.Warn("Failed to unmarshal cached product", zap.Uint("product_id", id), zap.Error(err))
		return nil, false
	}
	cm.recordLookup(ctx, "product", true)
	return &product, true
}

func (cm *CacheManager) SetProduct(ctx context.Context, product *models.Product) {
	data, err := json.Marshal(product)
	if err != nil {
		cm.logger.Warn("Failed to marshal product for cache", zap.Uint("product_id", product.ID), zap.Error(err))
		return
	}
	if err := cm.redis.Set(ctx, productKey(product.ID), data, cm.ttl).Err(); err != nil {
		cm.logger.Debug("Failed to cache product", zap.Uint("product_id", product.ID), zap.Error(err))
	}
}

func (cm *CacheManager) GetProductList(ctx context.Context, limit, offset int) (*ProductListResult, bool) {
	version, err := cm.cacheVersion(ctx)
	if err != nil {
		return nil, false
	}

	data, err := cm.redis.Get(ctx, listKey(version, limit, offset)).Bytes()
	if err != nil {
		cm.recordLookup(ctx, "product_list", false)
		return nil, false
	}

	var result ProductListResult
	if err := json.Unmarshal(data, &result); err != nil {
		cm.logger.Warn("Failed to unmarshal cached product list", zap.Error(err))
		return nil, false
	}
	cm.recordLookup(ctx, "product_list", true)
	return &result, true
}

func (cm *CacheManager) SetProductList(ctx context.Context, limit, offset int, result *ProductListResult) {
	version, err := cm.cacheVersion(ctx)
	if err != nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		cm.logger.Warn("Failed to marshal product list for cache", zap.Error(err))
		return
	}
	if err := cm.redis.Set(ctx, listKey(version, limit, offset), data, cm.ttl).Err(); err != nil {
		cm.logger.Debug("Failed to cache product list", zap.Error(err))
	}
}

// InvalidateProducts drops the detail entries for ids and every list page.
func (cm *CacheManager) InvalidateProducts(ctx context.Context, ids ...uint) {
	if err := cm.redis.Incr(ctx, CacheVersionKey).Err(); err != nil {
		cm.logger.Warn("Failed to bump product cache version", zap.Error(err))
	}

	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}
	if err := cm.redis.Del(ctx, keys...).Err(); err != nil {
		cm.logger.Warn("Failed to delete cached products", zap.Error(err))
	}
}

func (cm *CacheManager) cacheVersion(ctx context.Context) (int64, error) {
	version, err := cm.redis.Get(ctx, CacheVersionKey).Int64()
	if err == nil && version > 0 {
		return version, nil
	}
	if errors.Is(err, redis.Nil) {
		if err := cm.redis.SetNX(ctx, CacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return cm.redis.Get(ctx, CacheVersionKey).Int64()
	}
	if err == nil {
		err = fmt.Errorf("invalid cache version %d", version)
	}
	return 0, err
}

func listKey(version int64, limit, offset int) string {
	return fmt.Sprintf("%s%d:l:%d:o:%d", ProductListCachePrefix, version, limit, offset)
}
