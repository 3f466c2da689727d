// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package weevil

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/antflydb/weevil/lib/classification"
	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// classificationCacheTTL matches the other inference caches: results are only
// reused across near-simultaneous duplicate requests, not stored long-term.
const classificationCacheTTL = 2 * time.Minute

// ClassificationCache provides in-memory caching for document classification
// with singleflight deduplication of concurrent identical requests.
type ClassificationCache struct {
	memCache        *ttlcache.Cache[uint64, *classification.Result]
	sfGroup         *singleflight.Group
	singleflightHit *atomic.Uint64
	logger          *zap.Logger
	cancel          context.CancelFunc
}

// classifyKey captures everything that determines a classification result.
type classifyKey struct {
	Model           string
	Categories      []string
	MaxChunkTokens  int
	OverlapFraction float64
	Text            string
}

// NewClassificationCache creates a classification result cache.
func NewClassificationCache(logger *zap.Logger) *ClassificationCache {
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[uint64, *classification.Result](classificationCacheTTL),
	)
	go cache.Start()

	ctx, cancel := context.WithCancel(context.Background())
	singleflightHit := &atomic.Uint64{}

	cc := &ClassificationCache{
		memCache:        cache,
		sfGroup:         &singleflight.Group{},
		singleflightHit: singleflightHit,
		logger:          logger,
		cancel:          cancel,
	}

	go cc.logCacheStats(ctx)

	return cc
}

// Classify returns a cached result for the key or invokes classify to compute
// one, deduplicating concurrent identical requests. The bool reports a cache
// hit. Results carrying an error are returned but never cached.
func (cc *ClassificationCache) Classify(
	ctx context.Context,
	key classifyKey,
	classify func(ctx context.Context) *classification.Result,
) (*classification.Result, bool) {
	cacheKey := cc.computeCacheKey(key)

	if item := cc.memCache.Get(cacheKey); item != nil {
		RecordCacheHit("classification")
		cc.logger.Debug("Classification cache hit",
			zap.Uint64("cache_key", cacheKey),
			zap.String("model", key.Model),
			zap.String("category", item.Value().PredictedCategory))
		return item.Value(), true
	}

	RecordCacheMiss("classification")
	cc.logger.Debug("Classification cache miss",
		zap.Uint64("cache_key", cacheKey),
		zap.Int("text_length", len(key.Text)),
		zap.String("model", key.Model))

	v, _, shared := cc.sfGroup.Do(fmt.Sprintf("%d", cacheKey), func() (any, error) {
		// Double-check cache (another goroutine might have populated it)
		if item := cc.memCache.Get(cacheKey); item != nil {
			cc.logger.Debug("Classification found in cache during singleflight")
			return item.Value(), nil
		}

		result := classify(ctx)

		if result.Error == "" {
			cc.memCache.Set(cacheKey, result, ttlcache.DefaultTTL)
		}

		return result, nil
	})

	if shared {
		cc.singleflightHit.Add(1)
		cc.logger.Debug("Singleflight deduplication hit")
	}

	return v.(*classification.Result), false
}

// computeCacheKey generates a cache key from the full request shape.
func (cc *ClassificationCache) computeCacheKey(key classifyKey) uint64 {
	configStr := fmt.Sprintf("%s:%s:%d:%.3f",
		key.Model,
		strings.Join(key.Categories, "\x1f"),
		key.MaxChunkTokens,
		key.OverlapFraction)

	// Hash text separately (for large documents)
	textHash := sha256.Sum256([]byte(key.Text))

	return xxhash.Sum64String(configStr + string(textHash[:]))
}

// logCacheStats periodically logs cache statistics
func (cc *ClassificationCache) logCacheStats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics := cc.memCache.Metrics()
			hitRate := float64(0)
			if metrics.Hits+metrics.Misses > 0 {
				hitRate = float64(metrics.Hits) / float64(metrics.Hits+metrics.Misses) * 100
			}

			if cc.memCache.Len() == 0 {
				continue
			}

			cc.logger.Info("Classification cache stats",
				zap.Int("size", cc.memCache.Len()),
				zap.Uint64("singleflight_hits", cc.singleflightHit.Load()),
				zap.Uint64("cache_hits", metrics.Hits),
				zap.Uint64("cache_misses", metrics.Misses),
				zap.String("hit_rate_percent", fmt.Sprintf("%.2f", hitRate)))

		case <-ctx.Done():
			cc.logger.Info("Stopping classification cache stats logger")
			return
		}
	}
}

// Close releases resources
func (cc *ClassificationCache) Close() {
	cc.cancel()
	cc.memCache.Stop()
}
