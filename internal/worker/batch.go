package worker

import (
	"context"
	"sort"
	"sync"

	"github.com/fintechco/fraudguard/internal/domain"
)

// maxBatchWorkers bounds how many card groups are analyzed concurrently.
const maxBatchWorkers = 8

// BatchItem is one validated transaction queued for batch analysis.
type BatchItem struct {
	Transaction *domain.Transaction
	Warnings    []string
}

// AnalyzeBatch analyzes a set of validated transactions. Transactions for
// the same card are processed sequentially in timestamp order so velocity
// state observes them as they occurred; distinct cards run in parallel.
// Results are returned in input order, with a nil entry for any transaction
// whose analysis failed.
func (p *Pipeline) AnalyzeBatch(ctx context.Context, items []BatchItem) []*domain.Analysis {
	results := make([]*domain.Analysis, len(items))
	if len(items) == 0 {
		return results
	}

	// Group input indices by card, ordered by timestamp within each card.
	groups := make(map[string][]int)
	for i, item := range items {
		card := item.Transaction.CardNumber
		groups[card] = append(groups[card], i)
	}
	for _, indices := range groups {
		sort.SliceStable(indices, func(a, b int) bool {
			return items[indices[a]].Transaction.Timestamp.Before(items[indices[b]].Transaction.Timestamp)
		})
	}

	work := make(chan []int, len(groups))
	for _, indices := range groups {
		work <- indices
	}
	close(work)

	workers := maxBatchWorkers
	if len(groups) < workers {
		workers = len(groups)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for indices := range work {
				for _, idx := range indices {
					analysis, err := p.Analyze(ctx, items[idx].Transaction, items[idx].Warnings)
					if err != nil {
						continue
					}
					results[idx] = analysis
				}
			}
		}()
	}
	wg.Wait()

	return results
}
