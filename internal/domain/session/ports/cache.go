package ports

import (
	"context"
	"time"
)

// MetadataCache stores link metadata for short periods.
type MetadataCache interface {
	Get(ctx context.Context, key string) (Metadata, bool)
	Set(ctx context.Context, key string, md Metadata, ttl time.Duration)
}
