package cache

import (
	"context"
	"time"

	"medscan/internal/extract"
)

// ExtractionCache stores vision-extraction results keyed by image hash so
// re-scans of the same prescription skip the external call.
type ExtractionCache interface {
	Get(ctx context.Context, key string) (*extract.Result, bool, error)
	Set(ctx context.Context, key string, value *extract.Result, ttl time.Duration) error
}

type NoopExtractionCache struct{}

func (NoopExtractionCache) Get(_ context.Context, _ string) (*extract.Result, bool, error) {
	return nil, false, nil
}

func (NoopExtractionCache) Set(_ context.Context, _ string, _ *extract.Result, _ time.Duration) error {
	return nil
}
