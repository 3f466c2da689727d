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

// Package chunking splits token sequences into overlapping, context-preserving
// segments for independent classification.
package chunking

import (
	"fmt"
)

// Span is a half-open [Start, End) range into a document's token sequence.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of tokens covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Chunk is a token-bounded slice of a document, decoded back to text.
// Text is the tokenizer's decoding of the tokens in Span, not a
// character-offset substring: token and character boundaries need not align
// due to subword merges.
type Chunk struct {
	Span Span   `json:"span"`
	Text string `json:"text"`
}

// DefaultMaxChunkTokens is a conservative limit below the sequence budget of
// BART/DeBERTa-family NLI models, leaving headroom for the NLI hypothesis.
const DefaultMaxChunkTokens = 900

// DefaultOverlapFraction is the fraction of MaxChunkTokens shared between
// consecutive chunks to preserve cross-boundary context.
const DefaultOverlapFraction = 0.2

// SplitterConfig holds chunking parameters.
type SplitterConfig struct {
	// MaxChunkTokens is the maximum tokens per chunk (0 = default 900).
	MaxChunkTokens int

	// OverlapFraction is the fraction of MaxChunkTokens shared between
	// consecutive chunks (0 = default 0.2). Negative disables overlap.
	OverlapFraction float64
}

// DefaultSplitterConfig returns the design defaults.
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		MaxChunkTokens:  DefaultMaxChunkTokens,
		OverlapFraction: DefaultOverlapFraction,
	}
}

// Splitter produces deterministic overlapping spans over a token sequence.
type Splitter struct {
	maxChunkTokens int
	overlapTokens  int
}

// NewSplitter validates the configuration and returns a Splitter.
// A configuration where overlapTokens >= maxChunkTokens is rejected:
// the stride would be non-positive and splitting would never terminate.
func NewSplitter(cfg SplitterConfig) (*Splitter, error) {
	maxTokens := cfg.MaxChunkTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxChunkTokens
	}
	if maxTokens < 0 {
		return nil, fmt.Errorf("max chunk tokens must be positive, got %d", maxTokens)
	}

	overlapFraction := cfg.OverlapFraction
	if overlapFraction == 0 {
		overlapFraction = DefaultOverlapFraction
	}
	if overlapFraction < 0 {
		overlapFraction = 0
	}

	overlapTokens := int(float64(maxTokens) * overlapFraction)
	if overlapTokens >= maxTokens {
		return nil, fmt.Errorf("overlap of %d tokens must be smaller than chunk size %d", overlapTokens, maxTokens)
	}

	return &Splitter{
		maxChunkTokens: maxTokens,
		overlapTokens:  overlapTokens,
	}, nil
}

// MaxChunkTokens returns the configured per-chunk token limit.
func (s *Splitter) MaxChunkTokens() int { return s.maxChunkTokens }

// OverlapTokens returns the number of tokens shared between consecutive chunks.
func (s *Splitter) OverlapTokens() int { return s.overlapTokens }

// Split produces the ordered span sequence for a token count.
//
// Starting at offset 0, each span takes up to maxChunkTokens tokens; if the
// span reaches totalTokens the sequence ends, otherwise the next span starts
// maxChunkTokens-overlapTokens later. The spans cover [0, totalTokens) with
// no gaps, consecutive spans overlap by exactly overlapTokens except possibly
// at the final boundary, and the last span always ends at totalTokens. The
// final chunk is never padded or truncated, so it may be shorter than
// maxChunkTokens.
func (s *Splitter) Split(totalTokens int) []Span {
	if totalTokens <= 0 {
		return nil
	}

	stride := s.maxChunkTokens - s.overlapTokens
	spans := make([]Span, 0, (totalTokens+stride-1)/stride)

	for start := 0; ; start += stride {
		end := start + s.maxChunkTokens
		if end >= totalTokens {
			spans = append(spans, Span{Start: start, End: totalTokens})
			break
		}
		spans = append(spans, Span{Start: start, End: end})
	}

	return spans
}
