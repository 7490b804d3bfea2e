package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"evfwd/internal/log"
	"evfwd/internal/stream"
)

type RunnerConfig struct {
	Workers  int
	BulkSize int
	BulkWait time.Duration
}

// Runner pulls windows of messages from a source, processes them and commits
// them once their outcomes are reported.
type Runner struct {
	proc     *Processor
	workers  int
	bulkSize int
	bulkWait time.Duration
	logger   *log.Logger
}

func NewRunner(p *Processor, cfg RunnerConfig) *Runner {
	r := &Runner{proc: p, workers: cfg.Workers, bulkSize: cfg.BulkSize, bulkWait: cfg.BulkWait, logger: p.logger}
	if r.workers < 1 {
		r.workers = 1
	}
	if r.bulkSize < 1 {
		r.bulkSize = 1
	}
	if r.bulkWait <= 0 {
		r.bulkWait = time.Second
	}
	return r
}

func (r *Runner) windowSize() int {
	return r.bulkSize * r.workers
}

// Run returns nil when the source is exhausted or ctx is cancelled. Work
// already fetched is always finished and committed before returning.
func (r *Runner) Run(ctx context.Context, src stream.Source) error {
	detached := context.WithoutCancel(ctx)
	for {
		window, ferr := r.fill(ctx, src)
		if len(window) > 0 {
			r.handle(detached, window)
			if err := src.Commit(detached, window...); err != nil {
				return err
			}
			r.logger.Debug("window committed", log.Int("records", len(window)))
		}
		if ferr != nil {
			if errors.Is(ferr, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return ferr
		}
	}
}

// fill blocks for the first message, then waits at most bulkWait for each
// further one until the window is full.
func (r *Runner) fill(ctx context.Context, src stream.Source) ([]stream.Message, error) {
	size := r.windowSize()
	m, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	window := []stream.Message{m}
	for len(window) < size {
		fctx, cancel := context.WithTimeout(ctx, r.bulkWait)
		m, err := src.Fetch(fctx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			return window, err
		}
		window = append(window, m)
	}
	return window, nil
}

func (r *Runner) handle(ctx context.Context, window []stream.Message) {
	chunks := chunk(window, r.bulkSize)
	if len(chunks) == 1 || r.workers == 1 {
		for _, c := range chunks {
			r.handleChunk(ctx, c)
		}
		return
	}

	var wg sync.WaitGroup
	pool := make(chan struct{}, r.workers)
	for _, c := range chunks {
		wg.Add(1)
		pool <- struct{}{}
		go func(c []stream.Message) {
			defer wg.Done()
			defer func() { <-pool }()
			r.handleChunk(ctx, c)
		}(c)
	}
	wg.Wait()
}

func (r *Runner) handleChunk(ctx context.Context, c []stream.Message) {
	r.proc.metrics.Inflight.Add(float64(len(c)))
	defer r.proc.metrics.Inflight.Sub(float64(len(c)))
	if r.bulkSize > 1 {
		r.proc.ProcessBulk(ctx, c)
		return
	}
	for _, m := range c {
		r.proc.Process(ctx, m)
	}
}

func chunk(msgs []stream.Message, size int) [][]stream.Message {
	var out [][]stream.Message
	for size < len(msgs) {
		msgs, out = msgs[size:], append(out, msgs[0:size:size])
	}
	return append(out, msgs)
}
