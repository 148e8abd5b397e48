package sink

import (
	"context"
	"sync"
	"time"

	"usv-kernel/internal/logging"
	"usv-kernel/internal/observability"
	"usv-kernel/internal/telemetry"
)

// BatchWriter buffers sensor rows and hands them to the next writer in
// batches, either when size rows are pending or every interval while Run is
// active. State and actuator rows pass straight through.
type BatchWriter struct {
	next     Writer
	size     int
	interval time.Duration

	mu      sync.Mutex
	pending []telemetry.SensorRow
}

// NewBatchWriter wraps next. size <= 0 means 100 rows.
func NewBatchWriter(next Writer, size int, interval time.Duration) *BatchWriter {
	if size <= 0 {
		size = 100
	}
	return &BatchWriter{next: next, size: size, interval: interval}
}

// WriteSensor buffers row and flushes when the batch is full.
func (b *BatchWriter) WriteSensor(row telemetry.SensorRow) error {
	b.mu.Lock()
	b.pending = append(b.pending, row)
	full := len(b.pending) >= b.size
	b.mu.Unlock()
	if full {
		return b.Flush()
	}
	return nil
}

// WriteState passes row through.
func (b *BatchWriter) WriteState(row telemetry.StateRow) error { return b.next.WriteState(row) }

// WriteActuator passes row through.
func (b *BatchWriter) WriteActuator(row telemetry.ActuatorRow) error { return b.next.WriteActuator(row) }

// Pending reports how many rows wait for the next flush.
func (b *BatchWriter) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush writes all pending rows. Rows of a failed batch are dropped.
func (b *BatchWriter) Flush() error {
	b.mu.Lock()
	rows := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}
	return WriteSensors(b.next, rows)
}

// Run flushes every interval until ctx is cancelled, then flushes once more.
// Failed periodic flushes are logged and counted under the "batch" sink.
func (b *BatchWriter) Run(ctx context.Context) error {
	if b.interval <= 0 {
		<-ctx.Done()
		return b.Flush()
	}
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return b.Flush()
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				observability.SinkErrors.WithLabelValues("batch").Inc()
				logging.FromContext(ctx).Warn("batch flush failed", "component", "sink", "error", err)
			}
		}
	}
}
