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

// Package modelhub handles local model discovery and downloads from
// HuggingFace Hub. Models live under an owner/model directory structure:
//
//	<modelsDir>/classifiers/<owner>/<model-name>/
//
// Models without an owner may also sit directly under the type directory.
package modelhub

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ClassifiersDirName is the subdirectory for classifier models.
const ClassifiersDirName = "classifiers"

// ModelRef identifies a model by owner and name, e.g. "MoritzLaurer/deberta-v3-base-mnli".
type ModelRef struct {
	Owner string
	Name  string
}

// ParseModelRef parses "owner/name" or bare "name" references.
func ParseModelRef(ref string) (ModelRef, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ModelRef{}, fmt.Errorf("empty model reference")
	}

	parts := strings.Split(ref, "/")
	switch len(parts) {
	case 1:
		return ModelRef{Name: parts[0]}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return ModelRef{}, fmt.Errorf("invalid model reference %q", ref)
		}
		return ModelRef{Owner: parts[0], Name: parts[1]}, nil
	default:
		return ModelRef{}, fmt.Errorf("invalid model reference %q (expected owner/name)", ref)
	}
}

// FullName returns "owner/name", or just "name" when there is no owner.
func (r ModelRef) FullName() string {
	if r.Owner == "" {
		return r.Name
	}
	return r.Owner + "/" + r.Name
}

// DirPath returns the relative directory path for this model.
func (r ModelRef) DirPath() string {
	if r.Owner == "" {
		return r.Name
	}
	return filepath.Join(r.Owner, r.Name)
}

// ParseHuggingFaceRef parses a model reference like "hf:owner/repo" and
// returns the repo ID.
func ParseHuggingFaceRef(ref string) (repoID string, isHF bool) {
	if after, ok := strings.CutPrefix(ref, "hf:"); ok {
		return after, true
	}
	return "", false
}

// DiscoveredModel describes a model directory found on disk.
type DiscoveredModel struct {
	Ref  ModelRef
	Path string

	// OnnxFilename is the preferred ONNX file inside Path ("model.onnx"
	// unless only a variant file exists).
	OnnxFilename string
}

// DiscoverModels walks a type directory (e.g. <modelsDir>/classifiers) and
// returns every model directory containing an ONNX file. Both flat layouts
// (<dir>/<model>) and owner layouts (<dir>/<owner>/<model>) are handled.
func DiscoverModels(typeDir string) ([]DiscoveredModel, error) {
	entries, err := os.ReadDir(typeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading models directory: %w", err)
	}

	var models []DiscoveredModel
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(typeDir, entry.Name())
		if onnx := findOnnxFile(dirPath); onnx != "" {
			// Flat layout: model directly under the type directory.
			models = append(models, DiscoveredModel{
				Ref:          ModelRef{Name: entry.Name()},
				Path:         dirPath,
				OnnxFilename: onnx,
			})
			continue
		}

		// Owner layout: one more level of directories.
		subEntries, err := os.ReadDir(dirPath)
		if err != nil {
			continue
		}
		for _, sub := range subEntries {
			if !sub.IsDir() {
				continue
			}
			modelPath := filepath.Join(dirPath, sub.Name())
			if onnx := findOnnxFile(modelPath); onnx != "" {
				models = append(models, DiscoveredModel{
					Ref:          ModelRef{Owner: entry.Name(), Name: sub.Name()},
					Path:         modelPath,
					OnnxFilename: onnx,
				})
			}
		}
	}

	return models, nil
}

// findOnnxFile returns the preferred ONNX filename in dir, or "" if none.
func findOnnxFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var fallback string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == "model.onnx" {
			return name
		}
		if strings.HasSuffix(name, ".onnx") && fallback == "" {
			fallback = name
		}
	}
	return fallback
}
