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
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/antflydb/weevil/lib/chunking"
	"github.com/antflydb/weevil/lib/tokenizer"
	"github.com/antflydb/weevil/lib/zsc"
	"go.uber.org/zap"
)

// DocumentClassifier drives the full pipeline for one document: validate,
// tokenize, chunk if needed, classify per chunk, aggregate. It holds no
// per-call state; all entities live only for the duration of a call, so one
// DocumentClassifier may serve many documents concurrently as long as the
// underlying zsc.Classifier is safe for concurrent invocation (the pooled
// implementation is).
type DocumentClassifier struct {
	model      string
	classifier zsc.Classifier
	codec      tokenizer.Codec
	splitter   *chunking.Splitter
	logger     *zap.Logger
}

// NewDocumentClassifier wires a zero-shot classifier and a token codec into a
// document pipeline for the named model. Splitter configuration errors
// (overlap >= chunk size) surface here, at construction time, never per call.
func NewDocumentClassifier(
	model string,
	classifier zsc.Classifier,
	codec tokenizer.Codec,
	cfg chunking.SplitterConfig,
	logger *zap.Logger,
) (*DocumentClassifier, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	splitter, err := chunking.NewSplitter(cfg)
	if err != nil {
		return nil, fmt.Errorf("configuring splitter: %w", err)
	}

	return &DocumentClassifier{
		model:      model,
		classifier: classifier,
		codec:      codec,
		splitter:   splitter,
		logger:     logger,
	}, nil
}

// ClassifyDocument classifies text into one of the given categories. If
// categories is empty the built-in default set is used. The returned Result
// is always structurally valid; per-chunk classification failures never
// surface as call-level errors, only empty input and a primitive failure
// before any chunk was scored do (via the Error field).
func (dc *DocumentClassifier) ClassifyDocument(ctx context.Context, text string, categories []string) *Result {
	result := dc.classify(ctx, text, categories)
	result.Model = dc.model
	return result
}

func (dc *DocumentClassifier) classify(ctx context.Context, text string, categories []string) *Result {
	if strings.TrimSpace(text) == "" {
		return ErrorResult("empty text provided")
	}

	if len(categories) == 0 {
		categories = DefaultCategories()
	}

	tokens, err := dc.codec.Encode(text)
	if err != nil {
		dc.logger.Error("Tokenization failed", zap.Error(err))
		return ErrorResult(fmt.Sprintf("tokenizing text: %v", err))
	}
	tokenCount := len(tokens)

	start := time.Now()

	if tokenCount <= dc.splitter.MaxChunkTokens() {
		return dc.classifyDirect(ctx, text, categories, tokenCount, start)
	}
	return dc.classifyChunked(ctx, tokens, categories, start)
}

// classifyDirect handles documents that fit in a single chunk: one primitive
// call, no aggregation.
func (dc *DocumentClassifier) classifyDirect(ctx context.Context, text string, categories []string, tokenCount int, start time.Time) *Result {
	dc.logger.Debug("Classifying document directly",
		zap.Int("token_count", tokenCount),
		zap.Int("num_categories", len(categories)))

	results, err := dc.classifier.Classify(ctx, []string{text}, categories)
	if err != nil {
		dc.logger.Error("Direct classification failed", zap.Error(err))
		return ErrorResult(fmt.Sprintf("classifying text: %v", err))
	}
	if len(results) == 0 || len(results[0]) == 0 {
		return ErrorResult("classifier returned no results")
	}

	scores := scoreSet(categories, results[0])
	predicted, confidence := argmax(categories, scores)

	dc.logger.Info("Classification completed",
		zap.String("predicted", predicted),
		zap.Float64("confidence", confidence),
		zap.Int("chunks_used", 1))

	return &Result{
		PredictedCategory: predicted,
		ConfidenceScore:   round4(confidence),
		AllScores:         roundScores(scores),
		ChunksUsed:        1,
		AggregationMethod: MethodDirect,
		MajorityVote:      predicted,
		ChunkPredictions:  []string{predicted},
		TokenCount:        tokenCount,
		WasTruncated:      false,
		InferenceTime:     round3(time.Since(start).Seconds()),
	}
}

// classifyChunked splits the token sequence into overlapping chunks,
// classifies each in order, and aggregates. A single chunk's failure is
// isolated: it contributes zero scores and processing continues.
func (dc *DocumentClassifier) classifyChunked(ctx context.Context, tokens []int, categories []string, start time.Time) *Result {
	spans := dc.splitter.Split(len(tokens))

	dc.logger.Info("Classifying document in chunks",
		zap.Int("token_count", len(tokens)),
		zap.Int("num_chunks", len(spans)),
		zap.Int("max_chunk_tokens", dc.splitter.MaxChunkTokens()),
		zap.Int("overlap_tokens", dc.splitter.OverlapTokens()))

	chunks := make([]chunkScores, 0, len(spans))
	failedChunks := 0
	for i, span := range spans {
		chunkText, err := dc.codec.Decode(tokens[span.Start:span.End])
		if err != nil {
			// Tokenizer failures are fatal: chunk boundaries cannot be
			// materialized without the codec.
			dc.logger.Error("Chunk decode failed",
				zap.Int("chunk", i),
				zap.Error(err))
			return ErrorResult(fmt.Sprintf("decoding chunk %d: %v", i, err))
		}

		scores, failed := dc.classifyChunk(ctx, i, chunkText, categories)
		if failed {
			failedChunks++
		}
		chunks = append(chunks, scores)

		dc.logger.Debug("Processed chunk",
			zap.Int("chunk", i),
			zap.Int("span_start", span.Start),
			zap.Int("span_end", span.End))
	}

	agg := aggregate(categories, chunks)

	votes := agg.votes
	if len(votes) > maxChunkPredictions {
		votes = votes[:maxChunkPredictions]
	}

	dc.logger.Info("Classification completed",
		zap.String("predicted", agg.predicted),
		zap.Float64("confidence", agg.confidence),
		zap.String("method", string(agg.method)),
		zap.String("majority_vote", agg.majorityVote),
		zap.Int("chunks_used", len(spans)))

	return &Result{
		PredictedCategory: agg.predicted,
		ConfidenceScore:   round4(agg.confidence),
		AllScores:         roundScores(agg.meanScores),
		ChunksUsed:        len(spans),
		FailedChunks:      failedChunks,
		AggregationMethod: agg.method,
		MajorityVote:      agg.majorityVote,
		WeightedScores:    roundScores(agg.weightedScores),
		ChunkPredictions:  votes,
		TokenCount:        len(tokens),
		WasTruncated:      false,
		InferenceTime:     round3(time.Since(start).Seconds()),
	}
}

// classifyChunk invokes the primitive for one chunk with error isolation:
// any failure yields an all-zero score set instead of aborting the document.
// The second return reports whether the chunk failed.
func (dc *DocumentClassifier) classifyChunk(ctx context.Context, index int, text string, categories []string) (chunkScores, bool) {
	results, err := dc.classifier.Classify(ctx, []string{text}, categories)
	if err != nil {
		dc.logger.Warn("Chunk classification failed, zero-filling scores",
			zap.Int("chunk", index),
			zap.Error(err))
		return zeroScores(categories), true
	}
	if len(results) == 0 || len(results[0]) == 0 {
		dc.logger.Warn("Chunk classification returned no results, zero-filling scores",
			zap.Int("chunk", index))
		return zeroScores(categories), true
	}
	return scoreSet(categories, results[0]), false
}

// scoreSet converts the primitive's (label, score) pairs into a score set,
// zero-filling any category missing from the output.
func scoreSet(categories []string, classifications []zsc.Classification) chunkScores {
	scores := zeroScores(categories)
	for _, c := range classifications {
		if _, ok := scores[c.Label]; ok {
			scores[c.Label] = float64(c.Score)
		}
	}
	return scores
}

// round3 rounds inference durations for presentation.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
