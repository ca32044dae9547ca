package lexatom

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/lexatom/pkg/lexatom/store"
)

// DefaultWorkers bounds concurrent model calls in batch operations.
const DefaultWorkers = 4

// GenerateAllAtoms runs GenerateAtoms for every stored fragment with at most
// workers fragments in flight. The first failure cancels the rest; atoms
// already saved for other fragments are kept.
func (l *Lexatom) GenerateAllAtoms(ctx context.Context, workers int) (map[int64][]store.Atom, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	frags, err := l.store.ListFragments(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := make(map[int64][]store.Atom, len(frags))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range frags {
		g.Go(func() error {
			atoms, err := l.GenerateAtoms(gctx, f.ID)
			if err != nil {
				return fmt.Errorf("fragment %d: %w", f.ID, err)
			}
			mu.Lock()
			out[f.ID] = atoms
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	l.log.Info("generated atoms for all fragments", zap.Int("fragments", len(frags)), zap.Int("workers", workers))
	return out, nil
}
