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

package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitterRejectsOverlapNotSmallerThanChunk(t *testing.T) {
	tests := []struct {
		name string
		cfg  SplitterConfig
	}{
		{
			name: "overlap equal to chunk size",
			cfg:  SplitterConfig{MaxChunkTokens: 100, OverlapFraction: 1.0},
		},
		{
			name: "overlap larger than chunk size",
			cfg:  SplitterConfig{MaxChunkTokens: 100, OverlapFraction: 1.5},
		},
		{
			name: "negative chunk size",
			cfg:  SplitterConfig{MaxChunkTokens: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter(tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestSplitterDefaults(t *testing.T) {
	s, err := NewSplitter(SplitterConfig{})
	require.NoError(t, err)
	assert.Equal(t, 900, s.MaxChunkTokens())
	assert.Equal(t, 180, s.OverlapTokens())
}

func TestSplitterReferenceScenario(t *testing.T) {
	// 2000 tokens, maxChunkTokens=900, overlapFraction=0.2 (overlap=180)
	s, err := NewSplitter(SplitterConfig{MaxChunkTokens: 900, OverlapFraction: 0.2})
	require.NoError(t, err)

	spans := s.Split(2000)
	require.Equal(t, []Span{
		{Start: 0, End: 900},
		{Start: 720, End: 1620},
		{Start: 1440, End: 2000},
	}, spans)
	assert.Equal(t, 560, spans[len(spans)-1].Len())
}

func TestSplitterShortInputSingleSpan(t *testing.T) {
	s, err := NewSplitter(SplitterConfig{MaxChunkTokens: 900, OverlapFraction: 0.2})
	require.NoError(t, err)

	tests := []struct {
		name  string
		total int
	}{
		{name: "well under limit", total: 100},
		{name: "exactly at limit", total: 900},
		{name: "single token", total: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := s.Split(tt.total)
			require.Len(t, spans, 1)
			assert.Equal(t, Span{Start: 0, End: tt.total}, spans[0])
		})
	}
}

func TestSplitterEmptyInput(t *testing.T) {
	s, err := NewSplitter(SplitterConfig{MaxChunkTokens: 10, OverlapFraction: 0.2})
	require.NoError(t, err)
	assert.Nil(t, s.Split(0))
	assert.Nil(t, s.Split(-5))
}

func TestSplitterInvariants(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		max     int
		overlap float64
	}{
		{name: "no remainder", total: 1000, max: 100, overlap: 0.2},
		{name: "small remainder", total: 1003, max: 100, overlap: 0.2},
		{name: "large document", total: 50000, max: 900, overlap: 0.2},
		{name: "tiny chunks", total: 97, max: 10, overlap: 0.3},
		{name: "no overlap", total: 1000, max: 128, overlap: -1},
		{name: "just over limit", total: 901, max: 900, overlap: 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSplitter(SplitterConfig{MaxChunkTokens: tt.max, OverlapFraction: tt.overlap})
			require.NoError(t, err)

			spans := s.Split(tt.total)
			require.NotEmpty(t, spans)

			// First span starts at 0, last span ends exactly at total.
			assert.Equal(t, 0, spans[0].Start)
			assert.Equal(t, tt.total, spans[len(spans)-1].End)

			for i, span := range spans {
				assert.Less(t, span.Start, span.End, "span %d must be non-empty", i)
				assert.LessOrEqual(t, span.Len(), tt.max, "span %d exceeds max tokens", i)

				if i == 0 {
					continue
				}
				prev := spans[i-1]
				// Monotonically increasing starts, no gaps, constant overlap
				// except possibly at the final boundary.
				assert.Greater(t, span.Start, prev.Start, "span %d start must increase", i)
				assert.LessOrEqual(t, span.Start, prev.End, "span %d leaves a gap", i)
				if i < len(spans)-1 {
					assert.Equal(t, s.OverlapTokens(), prev.End-span.Start,
						"span %d overlap must be constant", i)
				}
			}
		})
	}
}

func TestSplitterDeterministic(t *testing.T) {
	s, err := NewSplitter(SplitterConfig{MaxChunkTokens: 900, OverlapFraction: 0.2})
	require.NoError(t, err)

	first := s.Split(12345)
	second := s.Split(12345)
	assert.Equal(t, first, second)
}
