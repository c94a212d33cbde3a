// Package batch runs per-item work in consecutive concurrent batches.
package batch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	Size  int           `yaml:"size"`
	Pause time.Duration `yaml:"pause"`
}

func DefaultOptions() Options {
	return Options{Size: 5, Pause: time.Second}
}

// Run calls fn for every item, Size at a time, pausing between batches.
// Results are index-aligned with items. fn reports failures through its
// result; one item failing never cancels its siblings. A cancelled context
// stops new batches from starting and leaves their slots zero-valued; the
// second return value counts how many items ran.
func Run[T, R any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, item T) R) ([]R, int) {
	size := opts.Size
	if size < 1 {
		size = 1
	}
	out := make([]R, len(items))
	ran := 0
	for start := 0; start < len(items); start += size {
		if start > 0 {
			if !pause(ctx, opts.Pause) {
				break
			}
		} else if ctx.Err() != nil {
			break
		}
		end := min(start+size, len(items))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				out[i] = fn(ctx, items[i])
				return nil
			})
		}
		_ = g.Wait()
		ran += end - start
	}
	return out, ran
}

func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
