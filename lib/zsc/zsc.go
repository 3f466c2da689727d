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

// Package zsc provides zero-shot classification using NLI models.
// Text is classified into arbitrary caller-supplied categories without
// requiring training data for those specific categories.
package zsc

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Classification represents a single classification prediction.
type Classification struct {
	// Label is the predicted category/class
	Label string `json:"label"`
	// Score is the confidence score (0.0 to 1.0)
	Score float32 `json:"score"`
}

// Classifier defines the interface for zero-shot classification models.
// These models use Natural Language Inference (NLI) to classify text into
// arbitrary categories without category-specific training.
type Classifier interface {
	// Classify classifies the given texts using the specified candidate labels.
	// Returns one result per input text; each result holds one Classification
	// per label, sorted by score descending, with labels a permutation of the
	// candidate labels.
	Classify(ctx context.Context, texts []string, labels []string) ([][]Classification, error)

	// Close releases any resources held by the classifier.
	Close() error
}

// DefaultHypothesisTemplate is the default template used for NLI-based
// zero-shot classification. The "{}" is replaced with each candidate label.
const DefaultHypothesisTemplate = "This example is {}."

// Config holds configuration for zero-shot classification models.
type Config struct {
	// HypothesisTemplate is the template for constructing NLI hypotheses.
	// Use "{}" as placeholder for the label.
	// Default: "This example is {}."
	HypothesisTemplate string `json:"hypothesis_template,omitempty"`

	// ModelID is the original HuggingFace model identifier.
	ModelID string `json:"model_id,omitempty"`
}

// LoadConfig loads the zero-shot classification configuration from the model
// directory, falling back to defaults if zsc_config.json is absent.
func LoadConfig(modelPath string) Config {
	config := Config{
		HypothesisTemplate: DefaultHypothesisTemplate,
	}

	configPath := filepath.Join(modelPath, "zsc_config.json")
	if data, err := os.ReadFile(configPath); err == nil {
		_ = json.Unmarshal(data, &config)
	}

	if config.HypothesisTemplate == "" {
		config.HypothesisTemplate = DefaultHypothesisTemplate
	}

	return config
}

// IsZSCModel checks if the model path contains a zero-shot classification model.
func IsZSCModel(modelPath string) bool {
	// Check for zsc_config.json
	configPath := filepath.Join(modelPath, "zsc_config.json")
	if _, err := os.Stat(configPath); err == nil {
		return true
	}

	// Check for NLI output labels (entailment, contradiction) in config.json,
	// which indicates the model can be used for zero-shot classification
	modelConfigPath := filepath.Join(modelPath, "config.json")
	if data, err := os.ReadFile(modelConfigPath); err == nil {
		var modelConfig struct {
			ID2Label map[string]string `json:"id2label"`
		}
		if err := json.Unmarshal(data, &modelConfig); err == nil {
			hasEntailment := false
			hasContradiction := false
			for _, label := range modelConfig.ID2Label {
				switch strings.ToLower(label) {
				case "entailment":
					hasEntailment = true
				case "contradiction":
					hasContradiction = true
				}
			}
			if hasEntailment && hasContradiction {
				return true
			}
		}
	}

	// Check for known ZSC model patterns in the name
	modelName := strings.ToLower(filepath.Base(modelPath))
	return strings.Contains(modelName, "mnli") ||
		strings.Contains(modelName, "xnli") ||
		strings.Contains(modelName, "nli") ||
		strings.Contains(modelName, "zero-shot") ||
		strings.Contains(modelName, "zeroshot")
}
