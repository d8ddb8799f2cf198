package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group runs independent tasks and waits for all of them. The first failure
// cancels the context handed to the remaining tasks and is returned by Wait.
type Group struct {
	eg  *errgroup.Group
	ctx context.Context
}

// NewGroup returns a Group whose tasks see a context derived from ctx.
func NewGroup(ctx context.Context) *Group {
	eg, gctx := errgroup.WithContext(ctx)
	return &Group{eg: eg, ctx: gctx}
}

// Go launches fn.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.eg.Go(func() error { return fn(g.ctx) })
}

// Wait blocks until every task returned and reports the first error.
func (g *Group) Wait() error {
	return g.eg.Wait()
}

// Collect runs fn for every index in [0, n) concurrently and returns the
// results in index order, or the first error.
func Collect[T any](ctx context.Context, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	out := make([]T, n)
	g := NewGroup(ctx)
	for i := 0; i < n; i++ {
		g.Go(func(ctx context.Context) error {
			v, err := fn(ctx, i)
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
