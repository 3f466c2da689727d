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

package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBPECodecRoundTrip(t *testing.T) {
	codec, err := NewBPECodec("cl100k_base")
	require.NoError(t, err)

	text := "The quick brown fox jumps over the lazy dog."
	ids, err := codec.Encode(text)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	decoded, err := codec.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, text, decoded)

	assert.Equal(t, len(ids), codec.CountTokens(text))
}

func TestBPECodecEmptyText(t *testing.T) {
	codec, err := NewBPECodec("")
	require.NoError(t, err)

	ids, err := codec.Encode("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	decoded, err := codec.Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)

	assert.Zero(t, codec.CountTokens(""))
}

func TestBPECodecUnknownEncoding(t *testing.T) {
	_, err := NewBPECodec("not-a-real-encoding")
	assert.Error(t, err)
}

func TestBPECodecSubranges(t *testing.T) {
	// Decoding a prefix of the ID sequence must yield a prefix of the text,
	// since chunk texts are materialized from token ID subranges.
	codec, err := NewBPECodec("cl100k_base")
	require.NoError(t, err)

	text := "Alpha beta gamma delta epsilon zeta eta theta."
	ids, err := codec.Encode(text)
	require.NoError(t, err)
	require.Greater(t, len(ids), 4)

	prefix, err := codec.Decode(ids[:4])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, prefix), "prefix %q of %q", prefix, text)

	suffix, err := codec.Decode(ids[4:])
	require.NoError(t, err)
	assert.Equal(t, text, prefix+suffix)
}

const testVocab = `[PAD]
[UNK]
[CLS]
[SEP]
[MASK]
the
quick
brown
fox
dog
##s
jump
##ed
over
lazy
a
`

func newTestWordPieceCodec(t *testing.T) *WordPieceCodec {
	t.Helper()
	codec, err := newWordPieceCodecFromVocab(testVocab)
	require.NoError(t, err)
	return codec
}

func TestWordPieceCodecRoundTrip(t *testing.T) {
	codec := newTestWordPieceCodec(t)

	text := "the quick brown fox jumped over the lazy dogs"
	ids, err := codec.Encode(text)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	decoded, err := codec.Decode(ids)
	require.NoError(t, err)
	for _, word := range []string{"quick", "brown", "fox", "lazy"} {
		assert.Contains(t, decoded, word)
	}
	// Subword pieces are rejoined and no special tokens are emitted.
	assert.NotContains(t, decoded, "##")
	assert.NotContains(t, decoded, "[CLS]")
	assert.NotContains(t, decoded, "[SEP]")
}

func TestWordPieceCodecNoSpecialTokens(t *testing.T) {
	codec := newTestWordPieceCodec(t)

	ids, err := codec.Encode("the dog")
	require.NoError(t, err)

	// IDs 2 and 3 are [CLS] and [SEP] in the test vocab.
	for _, id := range ids {
		assert.NotEqual(t, 2, id)
		assert.NotEqual(t, 3, id)
	}
}

func TestWordPieceCodecUnknownWords(t *testing.T) {
	codec := newTestWordPieceCodec(t)

	ids, err := codec.Encode("the xylophone")
	require.NoError(t, err)
	// "xylophone" is not in the vocab and maps to [UNK] (ID 1).
	assert.Contains(t, ids, 1)
}

func TestWordPieceCodecEmptyText(t *testing.T) {
	codec := newTestWordPieceCodec(t)

	ids, err := codec.Encode("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	decoded, err := codec.Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)

	assert.Zero(t, codec.CountTokens(""))
}

func TestWordPieceCodecCountTokens(t *testing.T) {
	codec := newTestWordPieceCodec(t)

	ids, err := codec.Encode("the quick brown fox")
	require.NoError(t, err)
	assert.Equal(t, len(ids), codec.CountTokens("the quick brown fox"))
}

func TestNewWordPieceCodecMissingFile(t *testing.T) {
	_, err := NewWordPieceCodec("/nonexistent/vocab.txt")
	assert.Error(t, err)
}
