// Package upload fans out one stream upload per player and fans the results
// back in before a game may end.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrIncomplete is returned when the batch failed, timed out or was cancelled.
var ErrIncomplete = errors.New("upload: batch incomplete")

const (
	DefaultTimeout = 2 * time.Minute
	cleanupTimeout = 10 * time.Second
)

// Task is one player's recorded output waiting for upload.
type Task struct {
	PlayerID uint
	Path     string
	Key      string
}

// Result is a finished upload.
type Result struct {
	PlayerID uint
	Key      string
	URL      string
}

// NewKey returns a random object key keeping the extension of localPath.
func NewKey(localPath string) string {
	return uuid.NewString() + filepath.Ext(localPath)
}

type Coordinator struct {
	sink    Sink
	timeout time.Duration
	logger  *zap.Logger
	open    func(string) (io.ReadCloser, error)

	duplicates atomic.Int64
}

func NewCoordinator(sink Sink, timeout time.Duration, logger *zap.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		open:    func(p string) (io.ReadCloser, error) { return os.Open(p) },
	}
}

// Duplicates is the number of reports ignored because the player had already reported.
func (c *Coordinator) Duplicates() int64 {
	return c.duplicates.Load()
}

// Run uploads every task and returns one result per distinct player, in task
// order, only after all of them have reported. The first failure cancels the
// rest; objects already written for the batch are then removed.
func (c *Coordinator) Run(ctx context.Context, tasks []Task) ([]Result, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	b := newBarrier(tasks)
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			res, err := c.upload(gctx, t)
			if err != nil {
				return fmt.Errorf("player %d: %w", t.PlayerID, err)
			}
			switch b.report(res) {
			case reportDuplicate:
				c.duplicates.Add(1)
				c.logger.Warn("Duplicate upload report ignored", zap.Uint("player", t.PlayerID), zap.String("key", res.Key))
				c.discard(ctx, res)
			case reportLate:
				c.discard(ctx, res)
			}
			return nil
		})
	}

	errc := make(chan error, 1)
	go func() { errc <- g.Wait() }()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	results, complete := b.close()
	if err == nil && !complete {
		err = errors.New("barrier not reached")
	}
	if err != nil {
		for _, r := range results {
			c.discard(ctx, r)
		}
		return nil, fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	return results, nil
}

// Discard removes objects of a batch whose results could not be used. Removal
// outlives the cancellation of ctx but keeps its values.
func (c *Coordinator) Discard(ctx context.Context, results []Result) {
	for _, r := range results {
		c.discard(ctx, r)
	}
}

func (c *Coordinator) upload(ctx context.Context, t Task) (Result, error) {
	f, err := c.open(t.Path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	key := t.Key
	if key == "" {
		key = NewKey(t.Path)
	}
	u, err := c.sink.Upload(ctx, key, f)
	if err != nil {
		return Result{}, err
	}
	return Result{PlayerID: t.PlayerID, Key: key, URL: u}, nil
}

func (c *Coordinator) discard(parent context.Context, r Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), cleanupTimeout)
	defer cancel()
	if err := c.sink.Delete(ctx, r.Key); err != nil {
		c.logger.Error("Failed to remove uploaded object", zap.String("key", r.Key), zap.Error(err))
	}
}

type reportOutcome int

const (
	reportAccepted reportOutcome = iota
	reportDuplicate
	reportLate
)

// barrier collects one result per player and opens once every player reported.
type barrier struct {
	mu      sync.Mutex
	order   []uint
	results map[uint]Result
	closed  bool
}

func newBarrier(tasks []Task) *barrier {
	b := &barrier{results: make(map[uint]Result, len(tasks))}
	seen := make(map[uint]bool, len(tasks))
	for _, t := range tasks {
		if !seen[t.PlayerID] {
			seen[t.PlayerID] = true
			b.order = append(b.order, t.PlayerID)
		}
	}
	return b
}

func (b *barrier) report(r Result) reportOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return reportLate
	}
	if _, ok := b.results[r.PlayerID]; ok {
		return reportDuplicate
	}
	b.results[r.PlayerID] = r
	return reportAccepted
}

// close stops accepting reports and returns what arrived so far.
func (b *barrier) close() ([]Result, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	out := make([]Result, 0, len(b.results))
	for _, id := range b.order {
		if r, ok := b.results[id]; ok {
			out = append(out, r)
		}
	}
	return out, len(out) == len(b.order)
}
