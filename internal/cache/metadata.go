// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/ManuGH/clipgate/internal/metrics"
)

// MetadataCache stores extractor metadata keyed by a hash of the source URL.
type MetadataCache struct {
	inner Cache
}

var _ ports.MetadataCache = (*MetadataCache)(nil)

// NewMetadataCache layers JSON encoding over inner.
func NewMetadataCache(inner Cache) *MetadataCache {
	return &MetadataCache{inner: inner}
}

func metadataKey(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return "md:" + hex.EncodeToString(sum[:16])
}

func (m *MetadataCache) Get(ctx context.Context, sourceURL string) (ports.Metadata, bool) {
	raw, ok := m.inner.Get(ctx, metadataKey(sourceURL))
	if !ok {
		metrics.MetadataCacheTotal.WithLabelValues("miss").Inc()
		return ports.Metadata{}, false
	}
	var md ports.Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		metrics.MetadataCacheTotal.WithLabelValues("corrupt").Inc()
		return ports.Metadata{}, false
	}
	metrics.MetadataCacheTotal.WithLabelValues("hit").Inc()
	return md, true
}

func (m *MetadataCache) Set(ctx context.Context, sourceURL string, md ports.Metadata, ttl time.Duration) {
	raw, err := json.Marshal(md)
	if err != nil {
		return
	}
	m.inner.Set(ctx, metadataKey(sourceURL), raw, ttl)
}
