package store

import (
	"context"
	"sync"
	"time"

	"docvault/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	storeTelemetryOnce    sync.Once
	storeOperationLatency metric.Float64Histogram
	storeOperationCounter metric.Int64Counter
	storeErrorCounter     metric.Int64Counter
)

func initStoreTelemetry() {
	storeTelemetryOnce.Do(func() {
		logger := logging.GetLogger()
		meter := otel.GetMeterProvider().Meter("docvault/pkg/store")

		var err error
		if storeOperationLatency, err = meter.Float64Histogram(
			"docvault_store_operation_duration_ms",
			metric.WithDescription("Latency of store operations in milliseconds"),
			metric.WithUnit("ms"),
		); err != nil {
			logger.Warn("Failed to register store latency metric: %v", err)
		}

		if storeOperationCounter, err = meter.Int64Counter(
			"docvault_store_operations_total",
			metric.WithDescription("Total store operations grouped by kind and outcome"),
		); err != nil {
			logger.Warn("Failed to register store operation counter: %v", err)
		}

		if storeErrorCounter, err = meter.Int64Counter(
			"docvault_store_errors_total",
			metric.WithDescription("Total failed store operations"),
		); err != nil {
			logger.Warn("Failed to register store error counter: %v", err)
		}
	})
}

func recordStoreOperation(ctx context.Context, op string, duration time.Duration, err error) {
	initStoreTelemetry()

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)

	if storeOperationLatency != nil {
		storeOperationLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
	if storeOperationCounter != nil {
		storeOperationCounter.Add(ctx, 1, attrs)
	}
	if err != nil && storeErrorCounter != nil {
		storeErrorCounter.Add(ctx, 1, attrs)
	}
}
