// Package metrics publishes request and webhook telemetry to CloudWatch.
//
// Metrics emitted:
//   - RequestCount:   Dims {Method, Route, Status}
//   - RequestLatency: Dims {Route}, milliseconds
//   - WebhookEvent:   Dims {EventType, Route, Outcome}
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"primos/internal/webhook"
)

// Metric and dimension names.
const (
	MetricRequestCount   = "RequestCount"
	MetricRequestLatency = "RequestLatency"
	MetricWebhookEvent   = "WebhookEvent"

	DimMethod    = "Method"
	DimRoute     = "Route"
	DimStatus    = "Status"
	DimEventType = "EventType"
	DimOutcome   = "Outcome"
)

// maxDatumsPerCall is the PutMetricData request limit.
const maxDatumsPerCall = 1000

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCollector buffers datums and publishes them in batches. Datums
// are sent when the buffer reaches the batch size, on Flush, and on every
// tick of Run.
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	batchSize int
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
}

// Option configures a CloudWatchCollector.
type Option func(*CloudWatchCollector)

// WithBatchSize sets how many datums are buffered before a synchronous send.
// A size of 1 publishes every datum immediately.
func WithBatchSize(n int) Option {
	return func(c *CloudWatchCollector) {
		if n > 0 && n <= maxDatumsPerCall {
			c.batchSize = n
		}
	}
}

// NewCloudWatchCollector creates a collector publishing to namespace.
func NewCloudWatchCollector(client CloudWatchClient, namespace string, logger *slog.Logger, opts ...Option) *CloudWatchCollector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &CloudWatchCollector{
		client:    client,
		namespace: namespace,
		batchSize: 100,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordRequest records one HTTP request.
func (c *CloudWatchCollector) RecordRequest(ctx context.Context, method, route, status string, duration time.Duration) {
	ts := aws.Time(c.now())
	c.add(ctx,
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricRequestCount),
			Timestamp:  ts,
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				dim(DimMethod, method),
				dim(DimRoute, route),
				dim(DimStatus, status),
			},
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricRequestLatency),
			Timestamp:  ts,
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{dim(DimRoute, route)},
		},
	)
}

// RecordWebhook records the outcome of one webhook delivery. Rejected
// deliveries have no event type.
func (c *CloudWatchCollector) RecordWebhook(ctx context.Context, eventType string, route webhook.Route, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	if route == "" {
		route = "none"
	}
	c.add(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricWebhookEvent),
		Timestamp:  aws.Time(c.now()),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			dim(DimEventType, eventType),
			dim(DimRoute, string(route)),
			dim(DimOutcome, outcome),
		},
	})
}

func (c *CloudWatchCollector) add(ctx context.Context, datums ...cwtypes.MetricDatum) {
	c.mu.Lock()
	c.pending = append(c.pending, datums...)
	var batch []cwtypes.MetricDatum
	if len(c.pending) >= c.batchSize {
		batch = c.pending
		c.pending = nil
	}
	c.mu.Unlock()

	if batch != nil {
		if err := c.publish(context.WithoutCancel(ctx), batch); err != nil {
			c.logger.ErrorContext(ctx, "failed to publish metrics", "error", err, "datums", len(batch))
		}
	}
}

// Flush publishes everything buffered.
func (c *CloudWatchCollector) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return c.publish(ctx, batch)
}

// Run flushes on every interval until ctx is done, then flushes once more.
func (c *CloudWatchCollector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := c.Flush(context.WithoutCancel(ctx)); err != nil {
				c.logger.Error("final metrics flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				c.logger.ErrorContext(ctx, "periodic metrics flush failed", "error", err)
			}
		}
	}
}

func (c *CloudWatchCollector) publish(ctx context.Context, batch []cwtypes.MetricDatum) error {
	var errs []error
	for start := 0; start < len(batch); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(batch))
		_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: batch[start:end],
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// Nop discards all metrics.
type Nop struct{}

func (Nop) RecordRequest(context.Context, string, string, string, time.Duration) {}
func (Nop) RecordWebhook(context.Context, string, webhook.Route, string) {}
