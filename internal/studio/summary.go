package studio

import "context"

// SummaryCache caches an owner's session list. A miss is (nil, false, nil).
// Errors are logged by the caller and otherwise ignored.
type SummaryCache interface {
	GetSummaries(ctx context.Context, userID uint64) ([]SessionSummary, bool, error)
	SetSummaries(ctx context.Context, userID uint64, list []SessionSummary) error
	InvalidateSummaries(ctx context.Context, userID uint64) error
}

type noCache struct{}

func (noCache) GetSummaries(context.Context, uint64) ([]SessionSummary, bool, error) {
	return nil, false, nil
}
func (noCache) SetSummaries(context.Context, uint64, []SessionSummary) error { return nil }
func (noCache) InvalidateSummaries(context.Context, uint64) error            { return nil }
