package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trackvault/trackvault/internal/observability/logger"
	obsmetrics "github.com/trackvault/trackvault/internal/observability/metrics"
	"github.com/trackvault/trackvault/internal/ratelimit"
)

const (
	rateLimitReasonSupplierRate               = "supplier-rate"
	rateLimitReasonSupplierProductConcurrency = "supplier-product-concurrency"
)

type collectionIngestRateLimitKey struct {
	SupplierID string `json:"supplier_id"`
	ProductID  string `json:"product_id"`
}

// CollectionIngestRateLimit throttles collection submissions per supplier
// and serializes concurrent submissions for the same supplier/product
// pair. Without a configured limiter the middleware is a pass-through, so
// field deployments without redis keep working.
func (s *Server) CollectionIngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.collectionLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		supplierID, productID, err := readCollectionIngestKey(c)
		if err != nil {
			logger.FromContext(ctx).Warn("collection ingest rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}
		if supplierID == "" {
			// Let the handler produce the validation error.
			c.Next()
			return
		}

		result, err := s.collectionLimiter.AllowSupplier(ctx, supplierID)
		if err != nil {
			logger.FromContext(ctx).Warn("collection ingest rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			denyCollectionIngest(c, endpoint, supplierID, rateLimitReasonSupplierRate, result, s.obsMetrics)
			return
		}

		if productID != "" {
			lockToken, locked, err := s.collectionLimiter.TryLockSupplierProduct(ctx, supplierID, productID)
			if err != nil {
				logger.FromContext(ctx).Warn("collection ingest concurrency lock failed", zap.Error(err))
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			if !locked {
				denyCollectionIngest(c, endpoint, supplierID, rateLimitReasonSupplierProductConcurrency, nil, s.obsMetrics)
				return
			}
			defer func() {
				if err := s.collectionLimiter.ReleaseSupplierProduct(ctx, supplierID, productID, lockToken); err != nil {
					logger.FromContext(ctx).Warn("collection ingest concurrency unlock failed", zap.Error(err))
				}
			}()
		}

		recordRateLimitAllowed(ctx, endpoint, supplierID, s.obsMetrics)
		c.Next()
	}
}

func denyCollectionIngest(c *gin.Context, endpoint, supplierID, reason string, result *ratelimit.RateLimitResult, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("collection ingest rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
		zap.String("supplier_id", supplierID),
	)
	recordRateLimitDenied(ctx, endpoint, supplierID, reason, metrics)

	c.Header("Retry-After", retryAfterSeconds(result))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(result *ratelimit.RateLimitResult) string {
	if result == nil || result.RetryAfter <= 0 {
		return "1"
	}
	secs := int(math.Ceil(result.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func recordRateLimitAllowed(ctx context.Context, endpoint, supplierID string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, supplierID, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, supplierID, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, supplierID, endpoint, reason)
}

func readCollectionIngestKey(c *gin.Context) (string, string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", "", nil
	}

	var payload collectionIngestRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", nil
	}

	return strings.TrimSpace(payload.SupplierID), strings.TrimSpace(payload.ProductID), nil
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
