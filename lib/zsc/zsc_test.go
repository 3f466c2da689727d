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

package zsc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModelFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestIsZSCModel(t *testing.T) {
	t.Run("zsc_config.json marker", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "some-model")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		writeModelFile(t, dir, "zsc_config.json", `{}`)
		assert.True(t, IsZSCModel(dir))
	})

	t.Run("NLI labels in config.json", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "some-model")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		writeModelFile(t, dir, "config.json",
			`{"id2label": {"0": "ENTAILMENT", "1": "NEUTRAL", "2": "Contradiction"}}`)
		assert.True(t, IsZSCModel(dir))
	})

	t.Run("entailment without contradiction", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "some-model")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		writeModelFile(t, dir, "config.json",
			`{"id2label": {"0": "entailment", "1": "neutral"}}`)
		assert.False(t, IsZSCModel(dir))
	})

	t.Run("name patterns", func(t *testing.T) {
		base := t.TempDir()
		for _, name := range []string{
			"deberta-v3-large-mnli",
			"xlm-roberta-xnli",
			"distilbert-zero-shot",
			"bart-zeroshot-v1",
		} {
			dir := filepath.Join(base, name)
			require.NoError(t, os.MkdirAll(dir, 0o755))
			assert.True(t, IsZSCModel(dir), name)
		}
	})

	t.Run("unrelated model", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "all-MiniLM-L6-v2")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		writeModelFile(t, dir, "config.json", `{"id2label": {"0": "LABEL_0"}}`)
		assert.False(t, IsZSCModel(dir))
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg := LoadConfig(t.TempDir())
		assert.Equal(t, DefaultHypothesisTemplate, cfg.HypothesisTemplate)
		assert.Empty(t, cfg.ModelID)
	})

	t.Run("reads custom template", func(t *testing.T) {
		dir := t.TempDir()
		writeModelFile(t, dir, "zsc_config.json",
			`{"hypothesis_template": "This text is about {}.", "model_id": "org/model"}`)
		cfg := LoadConfig(dir)
		assert.Equal(t, "This text is about {}.", cfg.HypothesisTemplate)
		assert.Equal(t, "org/model", cfg.ModelID)
	})

	t.Run("empty template falls back to default", func(t *testing.T) {
		dir := t.TempDir()
		writeModelFile(t, dir, "zsc_config.json", `{"model_id": "org/model"}`)
		cfg := LoadConfig(dir)
		assert.Equal(t, DefaultHypothesisTemplate, cfg.HypothesisTemplate)
	})

	t.Run("malformed json uses defaults", func(t *testing.T) {
		dir := t.TempDir()
		writeModelFile(t, dir, "zsc_config.json", `{not json`)
		cfg := LoadConfig(dir)
		assert.Equal(t, DefaultHypothesisTemplate, cfg.HypothesisTemplate)
	})
}
