package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	MetricHTTPRequests = "HTTPRequests"
	MetricHTTPErrors   = "HTTPErrors"
	MetricHTTPLatency  = "HTTPLatency"
	MetricHTTP4xx      = "HTTP4xxErrors"
	MetricHTTP5xx      = "HTTP5xxErrors"

	MetricOrdersCreated    = "OrdersCreated"
	MetricOrdersFailed     = "OrdersFailed"
	MetricOrderAmount      = "OrderAmount"
	MetricPaymentSucceeded = "PaymentSucceeded"
	MetricPaymentFailed    = "PaymentFailed"
	MetricCacheHits        = "CacheHits"
	MetricCacheMisses      = "CacheMisses"
)

type cloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsClient sends single data points to CloudWatch under one namespace.
// A disabled client accepts every call and sends nothing.
type MetricsClient struct {
	api       cloudWatchAPI
	namespace string
	enabled   bool
	now       func() time.Time
}

func NewMetricsClient(cfg sdkaws.Config, namespace string, enabled bool) *MetricsClient {
	return newMetricsClient(cloudwatch.NewFromConfig(cfg), namespace, enabled)
}

func newMetricsClient(api cloudWatchAPI, namespace string, enabled bool) *MetricsClient {
	if namespace == "" {
		namespace = "QueenBee"
	}
	return &MetricsClient{api: api, namespace: namespace, enabled: enabled, now: time.Now}
}

func (m *MetricsClient) IsEnabled() bool {
	return m.enabled
}

func (m *MetricsClient) RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error {
	return m.put(ctx, metricName, 1, types.StandardUnitCount, dimensions)
}

func (m *MetricsClient) RecordLatency(ctx context.Context, metricName string, d time.Duration, dimensions map[string]string) error {
	return m.put(ctx, metricName, float64(d.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
}

// RecordValue records a unitless value, e.g. an order total in cents.
func (m *MetricsClient) RecordValue(ctx context.Context, metricName string, value float64, dimensions map[string]string) error {
	return m.put(ctx, metricName, value, types.StandardUnitNone, dimensions)
}

func (m *MetricsClient) put(ctx context.Context, metricName string, value float64, unit types.StandardUnit, dimensions map[string]string) error {
	if !m.enabled {
		return nil
	}

	_, err := m.api.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.namespace),
		MetricData: []types.MetricDatum{{
			MetricName: sdkaws.String(metricName),
			Value:      sdkaws.Float64(value),
			Unit:       unit,
			Timestamp:  sdkaws.Time(m.now()),
			Dimensions: toDimensions(dimensions),
		}},
	})
	if err != nil {
		return fmt.Errorf("put metric %s: %w", metricName, err)
	}
	return nil
}

// toDimensions orders dimensions by name so identical sets produce
// identical requests.
func toDimensions(in map[string]string) []types.Dimension {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	dims := make([]types.Dimension, 0, len(names))
	for _, name := range names {
		dims = append(dims, types.Dimension{Name: sdkaws.String(name), Value: sdkaws.String(in[name])})
	}
	return dims
}
