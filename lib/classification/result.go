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

// Package classification implements the chunking-and-aggregation document
// classification pipeline: token-aware segmentation, per-segment zero-shot
// invocation with partial-failure tolerance, and multi-strategy score
// aggregation into one document-level decision.
package classification

import "math"

// Method identifies how per-chunk scores were combined into the final result.
type Method string

const (
	// MethodDirect means the document fit in one chunk and the classifier's
	// raw output was used as-is.
	MethodDirect Method = "direct"

	// MethodMeanProbabilities means the per-category mean across chunks won.
	MethodMeanProbabilities Method = "mean_probabilities"

	// MethodWeightedAverage means the confidence-weighted average overrode
	// the mean-probability result.
	MethodWeightedAverage Method = "weighted_average"
)

// FallbackCategory is returned for error-path results only; it is never a
// candidate label passed to the classifier.
const FallbackCategory = "Other"

// defaultCategories is the built-in category set used when the caller does
// not supply one. Callers always receive a copy; the slice is never mutated.
var defaultCategories = []string{
	"Technical Documentation",
	"Business Proposal",
	"Legal Document",
	"Academic Paper",
	"General Article",
}

// DefaultCategories returns a copy of the built-in category set.
func DefaultCategories() []string {
	out := make([]string, len(defaultCategories))
	copy(out, defaultCategories)
	return out
}

// maxChunkPredictions bounds the per-chunk vote diagnostic in the result.
const maxChunkPredictions = 5

// Result is the unified record returned by every classification call.
// It is structurally valid even on error paths: Error is non-empty and
// PredictedCategory is FallbackCategory with zero confidence.
type Result struct {
	PredictedCategory string             `json:"predicted_category"`
	ConfidenceScore   float64            `json:"confidence_score"`
	AllScores         map[string]float64 `json:"all_scores,omitempty"`
	ChunksUsed        int                `json:"chunks_used"`
	FailedChunks      int                `json:"failed_chunks,omitempty"`
	AggregationMethod Method             `json:"aggregation_method,omitempty"`
	MajorityVote      string             `json:"majority_vote,omitempty"`
	WeightedScores    map[string]float64 `json:"weighted_scores,omitempty"`
	ChunkPredictions  []string           `json:"chunk_predictions,omitempty"`
	TokenCount        int                `json:"token_count"`
	WasTruncated      bool               `json:"was_truncated"`
	InferenceTime     float64            `json:"inference_time,omitempty"`
	Model             string             `json:"model,omitempty"`
	Error             string             `json:"error,omitempty"`
}

// ErrorResult builds the sentinel result for input and availability errors.
func ErrorResult(msg string) *Result {
	return &Result{
		PredictedCategory: FallbackCategory,
		ConfidenceScore:   0.0,
		Error:             msg,
	}
}

// round4 rounds a score to 4 decimal digits for presentation.
// Selection logic always runs on unrounded values.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// roundScores rounds a score map for presentation.
func roundScores(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for k, v := range scores {
		out[k] = round4(v)
	}
	return out
}
