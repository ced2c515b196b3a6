package store

import (
	"context"

	"github.com/rotisserie/eris"
)

// DefaultBatchSize is the number of documents written per bulk operation.
const DefaultBatchSize = 200

// FlushFunc is called after each successful flush with the last document of
// the flushed batch.
type FlushFunc func(ctx context.Context, last DocumentResult) error

// BatchWriter buffers processed documents of one project and writes them in
// fixed-size bulk operations.
type BatchWriter struct {
	w         ResultWriter
	projectID string
	size      int
	onFlush   FlushFunc

	buf     []DocumentResult
	written Written
	flushes int
}

// NewBatchWriter creates a BatchWriter. A non-positive size uses
// DefaultBatchSize; onFlush may be nil.
func NewBatchWriter(w ResultWriter, projectID string, size int, onFlush FlushFunc) *BatchWriter {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &BatchWriter{
		w:         w,
		projectID: projectID,
		size:      size,
		onFlush:   onFlush,
		buf:       make([]DocumentResult, 0, size),
	}
}

// Add buffers a result and flushes when the batch is full.
func (b *BatchWriter) Add(ctx context.Context, r DocumentResult) error {
	b.buf = append(b.buf, r)
	if len(b.buf) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes any buffered results. On error the buffer is kept so the
// caller may retry.
func (b *BatchWriter) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}

	n, err := b.w.WriteResults(ctx, b.projectID, b.buf)
	if err != nil {
		return eris.Wrapf(err, "store: flush %d results for %s", len(b.buf), b.projectID)
	}
	b.written.Add(n)
	b.flushes++

	last := b.buf[len(b.buf)-1]
	b.buf = b.buf[:0]

	if b.onFlush != nil {
		if err := b.onFlush(ctx, last); err != nil {
			return eris.Wrapf(err, "store: after flush for %s", b.projectID)
		}
	}
	return nil
}

// Pending returns the number of buffered results.
func (b *BatchWriter) Pending() int {
	return len(b.buf)
}

// Written returns the totals of all successful flushes.
func (b *BatchWriter) Written() Written {
	return b.written
}

// Flushes returns the number of successful flushes.
func (b *BatchWriter) Flushes() int {
	return b.flushes
}
