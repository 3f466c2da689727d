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
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"

	khugot "github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Ensure PooledHugotZSC implements Classifier
var _ Classifier = (*PooledHugotZSC)(nil)

// PooledHugotZSC manages multiple zero-shot classification pipelines for
// concurrent requests over a single Hugot session. Access is bounded by a
// semaphore, so the underlying primitive is safe to share across goroutines.
type PooledHugotZSC struct {
	session       *khugot.Session
	pipelines     []*pipelines.ZeroShotClassificationPipeline
	sem           *semaphore.Weighted
	nextPipeline  atomic.Uint64
	logger        *zap.Logger
	sessionShared bool
	poolSize      int
	config        Config
}

// NewPooledHugotZSC creates a pooled zero-shot classifier for concurrent requests.
func NewPooledHugotZSC(modelPath string, poolSize int, logger *zap.Logger) (*PooledHugotZSC, error) {
	return NewPooledHugotZSCWithSession(modelPath, poolSize, nil, logger)
}

// NewPooledHugotZSCWithSession creates a pooled zero-shot classifier using an
// optional shared Hugot session. When sharedSession is nil a new session is
// created and owned (and destroyed) by the returned classifier.
func NewPooledHugotZSCWithSession(modelPath string, poolSize int, sharedSession *khugot.Session, logger *zap.Logger) (*PooledHugotZSC, error) {
	if modelPath == "" {
		return nil, errors.New("model path is required")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	// Auto-detect pool size
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize > 4 {
			poolSize = 4 // Cap at 4 for ZSC models (memory intensive)
		}
	}

	config := LoadConfig(modelPath)

	logger.Info("Initializing pooled Hugot Zero-Shot Classifier",
		zap.String("modelPath", modelPath),
		zap.Int("poolSize", poolSize),
		zap.String("hypothesisTemplate", config.HypothesisTemplate))

	session := sharedSession
	sessionShared := sharedSession != nil
	if session == nil {
		var err error
		session, err = khugot.NewGoSession()
		if err != nil {
			return nil, fmt.Errorf("creating hugot session: %w", err)
		}
	}

	onnxFilename := "model.onnx"
	pipelinesList := make([]*pipelines.ZeroShotClassificationPipeline, poolSize)

	for i := 0; i < poolSize; i++ {
		pipelineConfig := khugot.ZeroShotClassificationConfig{
			ModelPath:    modelPath,
			OnnxFilename: onnxFilename,
			Name:         fmt.Sprintf("zsc:%s:%s:%d", modelPath, onnxFilename, i),
			Options: []khugot.ZeroShotClassificationOption{
				pipelines.WithHypothesisTemplate(config.HypothesisTemplate),
			},
		}

		pipeline, err := khugot.NewPipeline(session, pipelineConfig)
		if err != nil {
			if !sessionShared {
				_ = session.Destroy()
			}
			logger.Error("Failed to create ZSC pipeline",
				zap.Int("index", i),
				zap.Error(err))
			return nil, fmt.Errorf("creating ZSC pipeline %d: %w", i, err)
		}
		pipelinesList[i] = pipeline
	}

	logger.Info("Successfully created pooled ZSC pipelines", zap.Int("count", poolSize))

	return &PooledHugotZSC{
		session:       session,
		pipelines:     pipelinesList,
		sem:           semaphore.NewWeighted(int64(poolSize)),
		logger:        logger,
		sessionShared: sessionShared,
		poolSize:      poolSize,
		config:        config,
	}, nil
}

// Classify classifies texts using the specified candidate labels.
// Thread-safe: uses a semaphore to limit concurrent pipeline access.
func (p *PooledHugotZSC) Classify(ctx context.Context, texts []string, labels []string) ([][]Classification, error) {
	if len(texts) == 0 {
		return [][]Classification{}, nil
	}

	if len(labels) == 0 {
		return nil, errors.New("at least one label is required")
	}

	// Acquire semaphore slot (blocks if all pipelines busy)
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring pipeline slot: %w", err)
	}
	defer p.sem.Release(1)

	// Round-robin pipeline selection
	idx := int(p.nextPipeline.Add(1) % uint64(p.poolSize))
	pipeline := p.pipelines[idx]

	p.logger.Debug("Using pipeline for ZSC",
		zap.Int("pipelineIndex", idx),
		zap.Int("num_texts", len(texts)),
		zap.Int("num_labels", len(labels)))

	output, err := pipeline.RunPipeline(texts, labels)
	if err != nil {
		p.logger.Error("Pipeline inference failed",
			zap.Int("pipelineIndex", idx),
			zap.Error(err))
		return nil, fmt.Errorf("running zero-shot classification: %w", err)
	}

	results := convertZSCOutput(output)

	p.logger.Debug("ZSC complete",
		zap.Int("pipelineIndex", idx),
		zap.Int("num_results", len(results)))

	return results, nil
}

// Close releases resources. The session is destroyed only if owned by this
// classifier; shared sessions are the owner's responsibility.
func (p *PooledHugotZSC) Close() error {
	p.pipelines = nil
	if p.session != nil && !p.sessionShared {
		p.logger.Info("Destroying Hugot session (owned by this pooled ZSC)")
		return p.session.Destroy()
	}
	return nil
}

// Config returns the classifier configuration.
func (p *PooledHugotZSC) Config() Config {
	return p.config
}

// convertZSCOutput converts pipeline output to Classification slices.
func convertZSCOutput(output *pipelines.ZeroShotOutput) [][]Classification {
	if output == nil {
		return [][]Classification{}
	}

	results := make([][]Classification, len(output.ClassificationOutputs))
	for i, out := range output.ClassificationOutputs {
		classifications := make([]Classification, len(out.Labels))
		for j, label := range out.Labels {
			classifications[j] = Classification{
				Label: label,
				Score: float32(out.Scores[j]),
			}
		}
		// Sort by score descending
		sort.Slice(classifications, func(a, b int) bool {
			return classifications[a].Score > classifications[b].Score
		})
		results[i] = classifications
	}
	return results
}
