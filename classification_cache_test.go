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
	"testing"

	"github.com/antflydb/weevil/lib/classification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleKey(text string) classifyKey {
	return classifyKey{
		Model:           "org/model",
		Categories:      []string{"A", "B"},
		MaxChunkTokens:  900,
		OverlapFraction: 0.2,
		Text:            text,
	}
}

func TestClassificationCacheHit(t *testing.T) {
	cc := NewClassificationCache(zap.NewNop())
	defer cc.Close()

	calls := 0
	classify := func(ctx context.Context) *classification.Result {
		calls++
		return &classification.Result{PredictedCategory: "A", ConfidenceScore: 0.9}
	}

	result, hit := cc.Classify(context.Background(), sampleKey("some document"), classify)
	require.False(t, hit)
	assert.Equal(t, "A", result.PredictedCategory)
	assert.Equal(t, 1, calls)

	result, hit = cc.Classify(context.Background(), sampleKey("some document"), classify)
	assert.True(t, hit)
	assert.Equal(t, "A", result.PredictedCategory)
	assert.Equal(t, 1, calls, "cached result must not recompute")
}

func TestClassificationCacheErrorResultsNotCached(t *testing.T) {
	cc := NewClassificationCache(zap.NewNop())
	defer cc.Close()

	calls := 0
	classify := func(ctx context.Context) *classification.Result {
		calls++
		return classification.ErrorResult("model exploded")
	}

	result, hit := cc.Classify(context.Background(), sampleKey("doc"), classify)
	require.False(t, hit)
	assert.NotEmpty(t, result.Error)

	_, hit = cc.Classify(context.Background(), sampleKey("doc"), classify)
	assert.False(t, hit)
	assert.Equal(t, 2, calls, "error results must be recomputed")
}

func TestClassificationCacheKeySensitivity(t *testing.T) {
	cc := NewClassificationCache(zap.NewNop())
	defer cc.Close()

	base := sampleKey("doc")

	variants := []classifyKey{
		func() classifyKey { k := base; k.Model = "other/model"; return k }(),
		func() classifyKey { k := base; k.Categories = []string{"A", "C"}; return k }(),
		func() classifyKey { k := base; k.MaxChunkTokens = 512; return k }(),
		func() classifyKey { k := base; k.OverlapFraction = 0.1; return k }(),
		func() classifyKey { k := base; k.Text = "doc2"; return k }(),
	}

	baseKey := cc.computeCacheKey(base)
	assert.Equal(t, baseKey, cc.computeCacheKey(base), "key must be deterministic")

	for i, v := range variants {
		assert.NotEqual(t, baseKey, cc.computeCacheKey(v), "variant %d must change the key", i)
	}
}
