// Package loader runs bulk record loads on a bounded set of goroutines.
package loader

import (
	"context"
	"runtime"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/tagview/asset"
	"github.com/chazu/tagview/tag"
)

var log = commonlog.GetLogger("tagview.loader")

// Pool bounds how many loads run at once.
type Pool struct {
	workers int
}

// New returns a pool running up to workers loads concurrently. A
// non-positive count uses GOMAXPROCS.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int { return p.workers }

// Result is the outcome of one load in a KeepGoing run.
type Result[T any] struct {
	Hash  tag.TagHash
	Value T
	Err   error
}

// Map runs fn for every hash and returns the values in input order. The
// first error cancels the context passed to the remaining calls and is
// returned.
func Map[T any](ctx context.Context, p *Pool, hashes []tag.TagHash, fn func(context.Context, tag.TagHash) (T, error)) ([]T, error) {
	out := make([]T, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(p.workers, len(hashes)))
	for i, h := range hashes {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			v, err := fn(gctx, h)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// KeepGoing runs fn for every hash and records each failure in its Result
// instead of stopping. Only cancellation of ctx ends the run early; hashes
// not reached carry ctx's error.
func KeepGoing[T any](ctx context.Context, p *Pool, hashes []tag.TagHash, fn func(context.Context, tag.TagHash) (T, error)) []Result[T] {
	out := make([]Result[T], len(hashes))
	g := new(errgroup.Group)
	g.SetLimit(max(1, min(p.workers, len(hashes))))
	for i, h := range hashes {
		out[i].Hash = h
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Value, out[i].Err = fn(ctx, h)
			if out[i].Err != nil {
				log.Debugf("load %s: %s", h, out[i].Err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Techniques loads every technique in hashes through l.
func (p *Pool) Techniques(ctx context.Context, l *asset.Loader, hashes []tag.TagHash) ([]*asset.LoadedTechnique, error) {
	return Map(ctx, p, hashes, func(_ context.Context, h tag.TagHash) (*asset.LoadedTechnique, error) {
		return l.Technique(h)
	})
}

// Decode reads every hash as the named asset type, continuing past
// failures.
func (p *Pool) Decode(ctx context.Context, types *asset.Types, r *tag.Reader, name string, hashes []tag.TagHash) []Result[any] {
	return KeepGoing(ctx, p, hashes, func(_ context.Context, h tag.TagHash) (any, error) {
		return types.Decode(r, name, h)
	})
}

// Prefetch reads the raw bytes of every hash, warming any cache in front of
// s. It returns the number of bytes read.
func (p *Pool) Prefetch(ctx context.Context, s tag.Store, hashes []tag.TagHash) (int64, error) {
	sizes, err := Map(ctx, p, hashes, func(_ context.Context, h tag.TagHash) (int, error) {
		b, err := s.Bytes(h)
		return len(b), err
	})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range sizes {
		total += int64(n)
	}
	return total, nil
}
