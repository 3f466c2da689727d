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

// weightedOverrideMargin is the relative margin by which the confidence-
// weighted score must beat the mean-probability score to take over the
// final prediction.
const weightedOverrideMargin = 1.1

// chunkScores holds one score per category for a single attempted chunk.
// A chunk that failed classification contributes a zero for every category,
// so the per-category sample count always equals the number of attempted
// chunks, not just successful ones.
type chunkScores map[string]float64

// zeroScores returns an all-zero score set for a failed chunk.
func zeroScores(categories []string) chunkScores {
	scores := make(chunkScores, len(categories))
	for _, c := range categories {
		scores[c] = 0
	}
	return scores
}

// aggregated holds the outcome of combining per-chunk scores.
type aggregated struct {
	predicted  string
	confidence float64
	method     Method

	meanScores     map[string]float64
	weightedScores map[string]float64
	majorityVote   string
	votes          []string
}

// aggregate combines per-chunk score sets via three strategies and selects
// the final prediction.
//
// Strategy A (mean probabilities): per-category average across all attempted
// chunks; failed chunks pull the mean down by design, penalizing categories
// that could not be evaluated everywhere.
//
// Strategy B (majority vote): each chunk votes for its top category; reported
// for diagnostics, never overrides the selection.
//
// Strategy C (confidence-weighted average): each chunk's score for a category
// is weighted by that same score. The weighted sums for every category are
// normalized by the total weight accumulated from the first category's chunk
// scores. The shared normalizer matches the original system's behavior and is
// kept for score compatibility.
//
// Selection: Strategy C wins only if its best score exceeds Strategy A's best
// score by more than the relative override margin; otherwise Strategy A wins.
func aggregate(categories []string, chunks []chunkScores) aggregated {
	meanScores := meanProbabilities(categories, chunks)
	weightedScores := weightedAverage(categories, chunks)
	votes, majority := majorityVote(categories, chunks)

	meanWinner, meanScore := argmax(categories, meanScores)
	weightedWinner, weightedScore := argmax(categories, weightedScores)

	agg := aggregated{
		meanScores:     meanScores,
		weightedScores: weightedScores,
		majorityVote:   majority,
		votes:          votes,
	}

	if weightedScore > meanScore*weightedOverrideMargin {
		agg.predicted = weightedWinner
		agg.confidence = weightedScore
		agg.method = MethodWeightedAverage
	} else {
		agg.predicted = meanWinner
		agg.confidence = meanScore
		agg.method = MethodMeanProbabilities
	}

	return agg
}

// meanProbabilities averages each category's score across all attempted chunks.
func meanProbabilities(categories []string, chunks []chunkScores) map[string]float64 {
	means := make(map[string]float64, len(categories))
	if len(chunks) == 0 {
		for _, c := range categories {
			means[c] = 0
		}
		return means
	}

	for _, c := range categories {
		var sum float64
		for _, scores := range chunks {
			sum += scores[c]
		}
		means[c] = sum / float64(len(chunks))
	}
	return means
}

// weightedAverage computes the self-weighted score per category, normalized
// by the total weight of the first category's chunk scores for every
// category. The shared normalizer is intentional, see aggregate.
func weightedAverage(categories []string, chunks []chunkScores) map[string]float64 {
	weighted := make(map[string]float64, len(categories))
	for _, c := range categories {
		weighted[c] = 0
	}

	if len(categories) == 0 || len(chunks) == 0 {
		return weighted
	}

	var totalWeight float64
	for _, scores := range chunks {
		totalWeight += scores[categories[0]]
	}
	if totalWeight <= 0 {
		return weighted
	}

	for _, c := range categories {
		var sum float64
		for _, scores := range chunks {
			s := scores[c]
			sum += s * s
		}
		weighted[c] = sum / totalWeight
	}
	return weighted
}

// majorityVote collects each chunk's top category in chunk order and returns
// the most frequent one. Ties are broken by the first occurrence among the
// tied categories in chunk iteration order.
func majorityVote(categories []string, chunks []chunkScores) ([]string, string) {
	if len(chunks) == 0 {
		return nil, ""
	}

	votes := make([]string, 0, len(chunks))
	counts := make(map[string]int, len(categories))
	firstSeen := make(map[string]int, len(categories))

	for i, scores := range chunks {
		vote, _ := argmax(categories, scores)
		votes = append(votes, vote)
		counts[vote]++
		if _, ok := firstSeen[vote]; !ok {
			firstSeen[vote] = i
		}
	}

	best := ""
	bestCount := -1
	for vote, count := range counts {
		switch {
		case count > bestCount:
			best, bestCount = vote, count
		case count == bestCount && firstSeen[vote] < firstSeen[best]:
			best = vote
		}
	}
	return votes, best
}

// argmax returns the highest-scoring category, breaking ties by the caller's
// category order so all-zero score sets still yield a deterministic answer.
func argmax(categories []string, scores map[string]float64) (string, float64) {
	if len(categories) == 0 {
		return "", 0
	}

	best := categories[0]
	bestScore := scores[best]
	for _, c := range categories[1:] {
		if scores[c] > bestScore {
			best, bestScore = c, scores[c]
		}
	}
	return best, bestScore
}
