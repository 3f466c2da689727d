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

// Package tokenizer provides text<->token codecs used to measure document
// length and to materialize chunk boundaries as text.
package tokenizer

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/decoder"
	"github.com/sugarme/tokenizer/model"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/util"
)

// Codec converts text to a token ID sequence and back. Encode never adds
// special/control tokens; Decode strips them. Decode(Encode(x)) may differ
// from x in whitespace normalization but preserves content.
type Codec interface {
	// Encode converts text to token IDs without special tokens.
	Encode(text string) ([]int, error)

	// Decode converts token IDs back to text, stripping special tokens.
	Decode(tokens []int) (string, error)

	// CountTokens returns the number of tokens in the text.
	// Returns a character-based estimate on error.
	CountTokens(text string) int
}

// BPECodec uses OpenAI's tiktoken BPE tokenization with embedded
// dictionaries, so it works offline.
type BPECodec struct {
	tiktoken *tiktoken.Tiktoken
}

func init() {
	// Set the offline loader for tiktoken to avoid network requests
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// NewBPECodec creates a BPE codec using tiktoken-go.
// The encoding parameter specifies which BPE encoding to use:
//   - "cl100k_base": GPT-4, GPT-3.5-turbo (recommended)
//   - "o200k_base": GPT-4o models
//   - "p50k_base": Codex models
//   - "r50k_base": GPT-3 models
func NewBPECodec(encoding string) (*BPECodec, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}

	tk, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %q: %w", encoding, err)
	}

	return &BPECodec{tiktoken: tk}, nil
}

// Encode converts text to BPE token IDs.
func (c *BPECodec) Encode(text string) ([]int, error) {
	if text == "" {
		return nil, nil
	}
	return c.tiktoken.Encode(text, nil, nil), nil
}

// Decode converts BPE token IDs back to text.
func (c *BPECodec) Decode(tokens []int) (string, error) {
	if len(tokens) == 0 {
		return "", nil
	}
	return c.tiktoken.Decode(tokens), nil
}

// CountTokens returns the number of tokens in the text.
func (c *BPECodec) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(c.tiktoken.Encode(text, nil, nil))
}

// WordPieceCodec uses BERT-style WordPiece tokenization, matching the
// vocabularies shipped with NLI classifier models.
type WordPieceCodec struct {
	tokenizer *tokenizer.Tokenizer
}

// NewWordPieceCodec creates a WordPiece codec from a vocab file
// (one token per line, ID is line number), typically the vocab.txt
// found in a classifier model directory.
//
// No post-processor is configured: chunking measures raw content tokens,
// so [CLS]/[SEP] are never emitted by Encode.
func NewWordPieceCodec(vocabPath string) (*WordPieceCodec, error) {
	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("reading vocab file: %w", err)
	}
	return newWordPieceCodecFromVocab(string(data))
}

func newWordPieceCodecFromVocab(vocabData string) (*WordPieceCodec, error) {
	vocab := make(model.Vocab)
	for i, line := range strings.Split(vocabData, "\n") {
		if line != "" {
			vocab[strings.TrimRight(line, "\r")] = i
		}
	}

	opts := util.NewParams(map[string]any{
		"unk_token": "[UNK]",
	})
	wp, err := wordpiece.New(vocab, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create wordpiece model: %w", err)
	}

	tk := tokenizer.NewTokenizer(wp)
	tk.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	tk.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())
	// NewWordPieceDecoder with the library's default prefix/cleanup values;
	// DefaultWordpieceDecoder leaves the embedded DecoderBase nil and panics
	// on Decode.
	tk.WithDecoder(decoder.NewWordPieceDecoder("##", true))

	return &WordPieceCodec{tokenizer: tk}, nil
}

// Encode converts text to WordPiece token IDs without special tokens.
// Uses a recover wrapper to handle panics from the underlying tokenizer
// library (github.com/sugarme/tokenizer has a bounds check bug in
// BertNormalizer.TransformRange).
func (c *WordPieceCodec) Encode(text string) (ids []int, err error) {
	if text == "" {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			ids = nil
			err = fmt.Errorf("wordpiece encode panic: %v", r)
		}
	}()

	enc, err := c.tokenizer.EncodeSingle(text, false)
	if err != nil {
		return nil, fmt.Errorf("encoding text: %w", err)
	}
	return enc.Ids, nil
}

// Decode converts WordPiece token IDs back to text, stripping special tokens
// and rejoining subword pieces.
func (c *WordPieceCodec) Decode(tokens []int) (string, error) {
	if len(tokens) == 0 {
		return "", nil
	}
	return c.tokenizer.Decode(tokens, true), nil
}

// CountTokens returns the number of tokens in the text.
func (c *WordPieceCodec) CountTokens(text string) int {
	ids, err := c.Encode(text)
	if err != nil {
		// Fallback: rough approximation (1 token ≈ 4 chars for English)
		return len(text) / 4
	}
	return len(ids)
}
