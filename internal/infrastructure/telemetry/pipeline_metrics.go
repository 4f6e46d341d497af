package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	AttrStatus          = attribute.Key("status")
	AttrErrorCode       = attribute.Key("error_code")
	AttrTransactionCode = attribute.Key("transaction_code")
)

// MetricConfirmationDuration is the name of the confirmation latency histogram
const MetricConfirmationDuration = "saku.bill.confirmation.duration"

// PipelineMetrics records the bulk confirmation pipeline.
// A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	meter         metric.Meter
	confirmations metric.Int64Counter
	durations     metric.Float64Histogram
	journalPosts  metric.Int64Counter
	retries       metric.Int64Counter
	exhausted     metric.Int64Counter
}

// NewPipelineMetrics creates the pipeline instruments on meter
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	m := &PipelineMetrics{meter: meter}
	var err error

	if m.confirmations, err = meter.Int64Counter("saku.bill.confirmations",
		metric.WithDescription("Bill confirmations by outcome"),
		metric.WithUnit("{confirmation}")); err != nil {
		return nil, fmt.Errorf("failed to create confirmations counter: %w", err)
	}
	if m.durations, err = meter.Float64Histogram(MetricConfirmationDuration,
		metric.WithDescription("Time spent on one bill confirmation"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create confirmation duration histogram: %w", err)
	}
	if m.journalPosts, err = meter.Int64Counter("saku.journal.posts",
		metric.WithDescription("Journal entries posted to Jurnal"),
		metric.WithUnit("{entry}")); err != nil {
		return nil, fmt.Errorf("failed to create journal posts counter: %w", err)
	}
	if m.retries, err = meter.Int64Counter("saku.queue.retries",
		metric.WithDescription("Task queue retries scheduled"),
		metric.WithUnit("{retry}")); err != nil {
		return nil, fmt.Errorf("failed to create retries counter: %w", err)
	}
	if m.exhausted, err = meter.Int64Counter("saku.queue.exhausted",
		metric.WithDescription("Task queue units that ran out of attempts"),
		metric.WithUnit("{unit}")); err != nil {
		return nil, fmt.Errorf("failed to create exhausted counter: %w", err)
	}
	return m, nil
}

// RecordConfirmation counts one confirmation and its latency. errorCode is empty on success.
func (m *PipelineMetrics) RecordConfirmation(ctx context.Context, status, errorCode string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrStatus.String(status)}
	if errorCode != "" {
		attrs = append(attrs, AttrErrorCode.String(errorCode))
	}
	m.confirmations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.durations.Record(ctx, elapsed.Seconds(), metric.WithAttributes(AttrStatus.String(status)))
}

// RecordJournalPost counts one journal entry
func (m *PipelineMetrics) RecordJournalPost(ctx context.Context, transactionCode int) {
	if m == nil {
		return
	}
	m.journalPosts.Add(ctx, 1, metric.WithAttributes(AttrTransactionCode.String(strconv.Itoa(transactionCode))))
}

// RecordRetry counts a scheduled retry
func (m *PipelineMetrics) RecordRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1)
}

// RecordExhausted counts a unit that failed after its last attempt
func (m *PipelineMetrics) RecordExhausted(ctx context.Context) {
	if m == nil {
		return
	}
	m.exhausted.Add(ctx, 1)
}

// ObserveBacklog registers a gauge reporting backlog() at each collection
func (m *PipelineMetrics) ObserveBacklog(backlog func() int64) error {
	if m == nil {
		return nil
	}
	_, err := m.meter.Int64ObservableGauge("saku.queue.backlog",
		metric.WithDescription("Units waiting for a task queue worker"),
		metric.WithUnit("{unit}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(backlog())
			return nil
		}))
	if err != nil {
		return fmt.Errorf("failed to create backlog gauge: %w", err)
	}
	return nil
}
