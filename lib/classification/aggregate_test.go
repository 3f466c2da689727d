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

package classification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanProbabilitiesCountsFailedChunks(t *testing.T) {
	categories := []string{"A", "B"}
	chunks := []chunkScores{
		{"A": 0.8, "B": 0.2},
		{"A": 0.6, "B": 0.4},
		zeroScores(categories), // failed chunk pulls the mean down
	}

	means := meanProbabilities(categories, chunks)
	assert.InDelta(t, (0.8+0.6)/3, means["A"], 1e-9)
	assert.InDelta(t, (0.2+0.4)/3, means["B"], 1e-9)
}

func TestWeightedAverageSharedNormalizer(t *testing.T) {
	// The normalizer is the total weight of the FIRST category's chunk
	// scores, applied to every category.
	categories := []string{"A", "B"}
	chunks := []chunkScores{
		{"A": 0.5, "B": 0.9},
		{"A": 0.5, "B": 0.1},
	}

	weighted := weightedAverage(categories, chunks)

	normalizer := 0.5 + 0.5
	assert.InDelta(t, (0.5*0.5+0.5*0.5)/normalizer, weighted["A"], 1e-9)
	// B is normalized by A's total weight, not its own.
	assert.InDelta(t, (0.9*0.9+0.1*0.1)/normalizer, weighted["B"], 1e-9)
}

func TestWeightedAverageZeroNormalizer(t *testing.T) {
	categories := []string{"A", "B"}
	chunks := []chunkScores{
		{"A": 0, "B": 0.9},
		{"A": 0, "B": 0.8},
	}

	weighted := weightedAverage(categories, chunks)
	assert.Zero(t, weighted["A"])
	assert.Zero(t, weighted["B"])
}

func TestMajorityVote(t *testing.T) {
	categories := []string{"Legal Document", "Business Proposal"}
	chunks := []chunkScores{
		{"Legal Document": 0.9, "Business Proposal": 0.1},
		{"Legal Document": 0.2, "Business Proposal": 0.8},
		{"Legal Document": 0.7, "Business Proposal": 0.3},
		{"Legal Document": 0.4, "Business Proposal": 0.6},
		{"Legal Document": 0.6, "Business Proposal": 0.4},
	}

	votes, majority := majorityVote(categories, chunks)
	assert.Equal(t, []string{
		"Legal Document",
		"Business Proposal",
		"Legal Document",
		"Business Proposal",
		"Legal Document",
	}, votes)
	assert.Equal(t, "Legal Document", majority)
}

func TestMajorityVoteTieBreaksByFirstOccurrence(t *testing.T) {
	categories := []string{"A", "B"}
	chunks := []chunkScores{
		{"A": 0.1, "B": 0.9}, // B first
		{"A": 0.9, "B": 0.1},
		{"A": 0.2, "B": 0.8},
		{"A": 0.8, "B": 0.2},
	}

	votes, majority := majorityVote(categories, chunks)
	assert.Len(t, votes, 4)
	assert.Equal(t, "B", majority)
}

func TestArgmaxDeterministicOnTies(t *testing.T) {
	categories := []string{"A", "B", "C"}

	best, score := argmax(categories, zeroScores(categories))
	assert.Equal(t, "A", best)
	assert.Zero(t, score)

	best, score = argmax(categories, chunkScores{"A": 0.5, "B": 0.5, "C": 0.2})
	assert.Equal(t, "A", best)
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestAggregateSelectsMeanByDefault(t *testing.T) {
	categories := []string{"A", "B"}
	chunks := []chunkScores{
		{"A": 0.7, "B": 0.3},
		{"A": 0.7, "B": 0.3},
	}

	agg := aggregate(categories, chunks)
	assert.Equal(t, MethodMeanProbabilities, agg.method)
	assert.Equal(t, "A", agg.predicted)
	assert.InDelta(t, 0.7, agg.confidence, 1e-9)
}

func TestAggregateWeightedOverride(t *testing.T) {
	// One confident chunk and one near-zero chunk: self-weighting rewards
	// the confident score enough to exceed the mean by more than 10%.
	categories := []string{"A", "B"}
	chunks := []chunkScores{
		{"A": 0.9, "B": 0.1},
		{"A": 0.1, "B": 0.05},
	}

	meanA := (0.9 + 0.1) / 2                        // 0.5
	weightedA := (0.9*0.9 + 0.1*0.1) / (0.9 + 0.1) // 0.82

	agg := aggregate(categories, chunks)
	require.Greater(t, weightedA, meanA*1.1)
	assert.Equal(t, MethodWeightedAverage, agg.method)
	assert.Equal(t, "A", agg.predicted)
	assert.InDelta(t, weightedA, agg.confidence, 1e-9)
}

func TestAggregateOverrideRequiresStrictMargin(t *testing.T) {
	// Weighted exactly equal to the mean must not override.
	categories := []string{"A"}
	chunks := []chunkScores{
		{"A": 0.6},
		{"A": 0.6},
	}

	agg := aggregate(categories, chunks)
	// weighted = (0.36+0.36)/1.2 = 0.6 == mean
	assert.Equal(t, MethodMeanProbabilities, agg.method)
	assert.InDelta(t, 0.6, agg.confidence, 1e-9)
}

func TestAggregateAllChunksFailed(t *testing.T) {
	categories := []string{"A", "B", "C"}
	chunks := []chunkScores{
		zeroScores(categories),
		zeroScores(categories),
	}

	agg := aggregate(categories, chunks)
	assert.Equal(t, MethodMeanProbabilities, agg.method)
	assert.Equal(t, "A", agg.predicted)
	assert.Zero(t, agg.confidence)
	assert.Equal(t, "A", agg.majorityVote)
}

func TestRound4PresentationOnly(t *testing.T) {
	assert.Equal(t, 0.1235, round4(0.12345678))
	assert.Equal(t, 0.0, round4(0.00004))
	rounded := roundScores(map[string]float64{"A": 0.99999, "B": 0.33333333})
	assert.Equal(t, 1.0, rounded["A"])
	assert.Equal(t, 0.3333, rounded["B"])
}
