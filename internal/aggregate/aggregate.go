// Package aggregate fans concurrent sub-fetches out across a bounded
// set of parent resources and flattens the results with provenance.
//
// Each sub-fetch is independently fault-tolerant: a parent the caller
// cannot access contributes an empty slice instead of failing the
// whole aggregation. Partial results always beat total failure.
package aggregate

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DefaultParentLimit bounds how many parents are fanned out over,
// protecting against pathological community sizes.
const DefaultParentLimit = 10

// Group holds one parent's fetched children.
type Group[P, C any] struct {
	Parent P
	Items  []C
}

// Item is one child tagged with the parent it came from, so consumers
// can group or attribute without re-fetching.
type Item[P, C any] struct {
	Parent P
	Child  C
}

// Collect fans out one fetch per parent concurrently and returns the
// per-parent groups in parent order. limit > 0 truncates the parent
// set first; limit <= 0 means no bound. Fetch failures are logged and
// mapped to empty item slices.
func Collect[P, C any](
	ctx context.Context,
	logger *slog.Logger,
	parents []P,
	limit int,
	name func(P) string,
	fetch func(context.Context, P) ([]C, error),
) []Group[P, C] {
	if limit > 0 && len(parents) > limit {
		parents = parents[:limit]
	}

	groups := make([]Group[P, C], len(parents))
	g, gctx := errgroup.WithContext(ctx)
	for i, parent := range parents {
		g.Go(func() error {
			items, err := fetch(gctx, parent)
			if err != nil {
				logger.Warn("sub-fetch failed, continuing with empty result",
					"parent", name(parent),
					"error", err)
				items = nil
			}
			groups[i] = Group[P, C]{Parent: parent, Items: items}
			return nil
		})
	}
	// Workers never return errors; Wait is a join point.
	_ = g.Wait()
	return groups
}

// Flatten turns groups into a single provenance-tagged sequence.
func Flatten[P, C any](groups []Group[P, C]) []Item[P, C] {
	var out []Item[P, C]
	for _, grp := range groups {
		for _, it := range grp.Items {
			out = append(out, Item[P, C]{Parent: grp.Parent, Child: it})
		}
	}
	return out
}
