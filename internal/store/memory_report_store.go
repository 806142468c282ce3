package store

import (
	"context"
	"sort"
	"sync"

	"github.com/dunamismax/variantflow/internal/domain"
)

type MemoryReportStore struct {
	mu      sync.RWMutex
	reports map[string]domain.Report
}

func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{
		reports: make(map[string]domain.Report),
	}
}

func (s *MemoryReportStore) Save(_ context.Context, report domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	report.Variants = append([]domain.VariantResult(nil), report.Variants...)
	s.reports[report.InvocationID] = report
	return nil
}

func (s *MemoryReportStore) Get(_ context.Context, invocationID string) (domain.Report, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[invocationID]
	return report, ok, nil
}

// ListByKey returns the newest reports first.
func (s *MemoryReportStore) ListByKey(_ context.Context, bucket, key string, limit int) ([]domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Report
	for _, r := range s.reports {
		if r.Bucket == bucket && r.Key == key {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
