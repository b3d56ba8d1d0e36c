package middleware

import (
	"context"
	"net/http"
	"time"

	aws_pkg "queenbee-api/pkg/aws"

	"github.com/gin-gonic/gin"
)

// RequestMetrics is the part of the CloudWatch client the HTTP layer needs.
type RequestMetrics interface {
	IsEnabled() bool
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, d time.Duration, dimensions map[string]string) error
}

// MetricsMiddleware reports one request count and latency per route, plus
// error counters for 4xx and 5xx responses. Data points are sent after the
// response on a separate goroutine.
func MetricsMiddleware(metrics RequestMetrics, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil || !metrics.IsEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		dims := map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Path":    route,
			"Status":  statusCodeToRange(status),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = metrics.RecordLatency(ctx, aws_pkg.MetricHTTPLatency, latency, dims)
			for _, name := range countersFor(status) {
				_ = metrics.RecordCount(ctx, name, dims)
			}
		}()
	}
}

func countersFor(status int) []string {
	switch {
	case status >= http.StatusInternalServerError:
		return []string{aws_pkg.MetricHTTPRequests, aws_pkg.MetricHTTPErrors, aws_pkg.MetricHTTP5xx}
	case status >= http.StatusBadRequest:
		return []string{aws_pkg.MetricHTTPRequests, aws_pkg.MetricHTTPErrors, aws_pkg.MetricHTTP4xx}
	default:
		return []string{aws_pkg.MetricHTTPRequests}
	}
}

func statusCodeToRange(status int) string {
	if status < 200 || status > 599 {
		return "unknown"
	}
	return string(rune('0'+status/100)) + "xx"
}
