// Package batch extracts many archive entries concurrently into a sink.
package batch

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/meigma/dat/internal/dattype"
	"github.com/meigma/dat/internal/sizing"
)

// Processor decodes entries from a Source using a bounded worker pool.
type Processor struct {
	source         Source
	workers        int // 0 = auto, <0 = serial, >0 = fixed count
	readAheadBytes uint64
	logger         *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Processor) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWorkers sets the number of workers for parallel processing.
// Values < 0 force serial processing. Zero uses GOMAXPROCS.
// Values > 0 force a specific worker count.
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithReadAheadBytes caps the total decoded size of entries in flight.
// An entry larger than the cap runs alone. A value of 0 disables the budget.
func WithReadAheadBytes(limit uint64) ProcessorOption {
	return func(p *Processor) {
		p.readAheadBytes = limit
	}
}

// WithProcessorLogger sets the logger for batch processing operations.
// If not set, logging is disabled.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a batch processor reading from source.
func NewProcessor(source Source, opts ...ProcessorOption) *Processor {
	p := &Processor{source: source}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process decodes entries and writes them to sink.
//
// Entries are filtered through sink.ShouldProcess and handled in offset
// order so reads walk the archive forward. Processing stops at the first
// error, which is returned along with the stats gathered so far.
func (p *Processor) Process(ctx context.Context, entries []*Entry, sink Sink) (Stats, error) {
	var stats Stats
	toProcess := make([]*Entry, 0, len(entries))
	for _, entry := range entries {
		if sink.ShouldProcess(entry) {
			toProcess = append(toProcess, entry)
		} else {
			stats.Skipped++
		}
	}
	if len(toProcess) == 0 {
		return stats, nil
	}
	slices.SortStableFunc(toProcess, func(a, b *Entry) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	var budget *semaphore.Weighted
	if p.readAheadBytes > 0 {
		limit, err := sizing.ToInt64(p.readAheadBytes, dattype.ErrSizeOverflow)
		if err != nil {
			return stats, fmt.Errorf("batch: %w", err)
		}
		budget = semaphore.NewWeighted(limit)
	}

	workers := p.workerCount(len(toProcess))
	p.log().Debug("batch start", "entries", len(toProcess), "skipped", stats.Skipped, "workers", workers)

	var processed atomic.Int64
	var written atomic.Uint64
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for _, entry := range toProcess {
		var weight int64
		if budget != nil {
			weight = max(int64(min(entry.Size, p.readAheadBytes)), 1) //nolint:gosec // bounded by limit
			if err := budget.Acquire(egctx, weight); err != nil {
				break
			}
		}
		eg.Go(func() error {
			if budget != nil {
				defer budget.Release(weight)
			}
			if err := egctx.Err(); err != nil {
				return err
			}
			if err := p.processEntry(entry, sink); err != nil {
				return err
			}
			processed.Add(1)
			written.Add(entry.Size)
			return nil
		})
	}
	err := eg.Wait()

	stats.Processed = int(processed.Load())
	stats.TotalBytes = written.Load()
	if err == nil {
		// A canceled parent context stops the loop before any worker fails.
		err = ctx.Err()
	}
	if err != nil {
		return stats, err
	}
	p.log().Debug("batch complete", "processed", stats.Processed, "bytes", stats.TotalBytes)
	return stats, nil
}

// processEntry decodes a single entry and commits it to the sink.
func (p *Processor) processEntry(entry *Entry, sink Sink) error {
	content, err := p.source.UnpackFile(entry.FileEntry)
	if err != nil {
		return fmt.Errorf("batch: %s: %w", entry.Path, err)
	}

	w, err := sink.Writer(entry)
	if err != nil {
		return fmt.Errorf("batch: %s: %w", entry.Path, err)
	}
	if err := writeAll(w, content); err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("batch: %s: %w", entry.Path, err)
	}
	if err := w.Commit(); err != nil {
		return fmt.Errorf("batch: %s: commit: %w", entry.Path, err)
	}
	p.log().Debug("extracted", "path", entry.Path, "bytes", len(content))
	return nil
}

// workerCount determines the number of workers to use for n entries.
func (p *Processor) workerCount(n int) int {
	if p.workers < 0 || n < 2 {
		return 1
	}
	workers := p.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return max(min(workers, n), 1)
}

func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}
