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

// Package weevil implements a zero-shot document classification service.
// Long documents are split into token-aligned overlapping chunks, each chunk
// is classified with an NLI model, and the per-chunk scores are aggregated
// into a single document-level prediction.
package weevil

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/antflydb/weevil/lib/chunking"
	"github.com/antflydb/weevil/lib/classification"
	"github.com/antflydb/weevil/lib/tokenizer"
	"github.com/antflydb/weevil/lib/zsc"
	khugot "github.com/knights-analytics/hugot"
	"go.uber.org/zap"
)

// WeevilNode holds the service state: the model registry, result cache,
// request queue, and the chunking configuration shared by all requests.
type WeevilNode struct {
	logger *zap.Logger

	registry            *ClassifierRegistry
	classificationCache *ClassificationCache
	requestQueue        *RequestQueue

	defaultModel   string
	splitterConfig chunking.SplitterConfig

	// Per-model token codecs. Models shipping a vocab.txt get a WordPiece
	// codec matching their own vocabulary; the rest share the BPE fallback.
	codecs       sync.Map
	defaultCodec tokenizer.Codec
}

// DefaultShutdownTimeout is the default time to wait for graceful shutdown
const DefaultShutdownTimeout = 30 * time.Second

// RunAsWeevil runs the classification service until ctx is cancelled.
// If readyC is non-nil, it will be closed when the server is ready to accept requests.
func RunAsWeevil(ctx context.Context, zl *zap.Logger, config Config, readyC chan struct{}) {
	zl = zl.Named("weevil")
	zl.Info("Starting weevil node", zap.Any("config", config))

	u, err := url.Parse(config.ApiUrl)
	if err != nil {
		zl.Fatal("Invalid API URL", zap.String("url", config.ApiUrl), zap.Error(err))
	}

	// Parse keep_alive duration
	var keepAlive time.Duration
	if config.KeepAlive != "" && config.KeepAlive != "0" {
		keepAlive, err = time.ParseDuration(config.KeepAlive)
		if err != nil {
			zl.Fatal("Invalid keep_alive duration", zap.String("keep_alive", config.KeepAlive), zap.Error(err))
		}
		zl.Info("Lazy unloading enabled",
			zap.Duration("keep_alive", keepAlive),
			zap.Int("max_loaded_models", config.MaxLoadedModels))
	}

	// Create shared Hugot session for all ONNX models
	// IMPORTANT: the ONNX Runtime backend allows only ONE session at a time,
	// so every classifier model must share this session.
	var sharedSession *khugot.Session
	if config.ModelsDir != "" {
		sharedSession, err = khugot.NewGoSession()
		if err != nil {
			zl.Fatal("Failed to create shared Hugot session", zap.Error(err))
		}
		defer func() { _ = sharedSession.Destroy() }()
	}

	registry, err := NewClassifierRegistry(
		ClassifierRegistryConfig{
			ModelsDir:       config.ModelsDir,
			KeepAlive:       keepAlive,
			MaxLoadedModels: uint64(config.MaxLoadedModels),
			PoolSize:        config.PoolSize,
		},
		sharedSession,
		zl.Named("registry"),
	)
	if err != nil {
		zl.Fatal("Failed to initialize classifier registry", zap.Error(err))
	}
	defer func() { _ = registry.Close() }()

	// Preload specified models at startup
	if len(config.Preload) > 0 {
		if err := registry.Preload(config.Preload); err != nil {
			zl.Warn("Some models failed to preload", zap.Error(err))
		}
	}

	// Default model: explicit config, or the sole discovered model
	defaultModel := config.DefaultModel
	if defaultModel == "" {
		if models := registry.List(); len(models) == 1 {
			defaultModel = models[0]
			zl.Info("Using sole discovered model as default",
				zap.String("model", defaultModel))
		}
	}

	// BPE fallback codec with embedded dictionaries (works offline)
	defaultCodec, err := tokenizer.NewBPECodec("")
	if err != nil {
		zl.Fatal("Failed to create BPE codec", zap.Error(err))
	}

	// Initialize request queue for backpressure control
	var requestTimeout time.Duration
	if config.RequestTimeout != "" && config.RequestTimeout != "0" {
		requestTimeout, err = time.ParseDuration(config.RequestTimeout)
		if err != nil {
			zl.Fatal("Invalid request_timeout duration", zap.String("request_timeout", config.RequestTimeout), zap.Error(err))
		}
	}

	requestQueue := NewRequestQueue(RequestQueueConfig{
		MaxConcurrentRequests: config.MaxConcurrentRequests,
		MaxQueueSize:          config.MaxQueueSize,
		RequestTimeout:        requestTimeout,
	}, zl.Named("queue"))

	classificationCache := NewClassificationCache(zl.Named("classification-cache"))
	defer classificationCache.Close()

	node := &WeevilNode{
		logger: zl,

		registry:            registry,
		classificationCache: classificationCache,
		requestQueue:        requestQueue,

		defaultModel: defaultModel,
		splitterConfig: chunking.SplitterConfig{
			MaxChunkTokens:  config.MaxChunkTokens,
			OverlapFraction: config.OverlapFraction,
		},
		defaultCodec: defaultCodec,
	}

	srv := &http.Server{
		Addr:        u.Host,
		Handler:     NewWeevilAPI(zl, node),
		ReadTimeout: 540 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		zl.Info("Weevil's api server starting", zap.String("address", config.ApiUrl))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Signal readiness after server starts
	if readyC != nil {
		close(readyC)
	}

	// Wait for context cancellation or server error
	select {
	case err := <-serverErr:
		if err != nil {
			zl.Fatal("HTTP server error", zap.Error(err))
		}
	case <-ctx.Done():
		zl.Info("Shutdown signal received, starting graceful shutdown...")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections
	srv.SetKeepAlivesEnabled(false)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("Graceful shutdown failed, forcing close",
			zap.Error(err),
			zap.Duration("timeout", DefaultShutdownTimeout))
		_ = srv.Close()
	} else {
		zl.Info("Graceful shutdown completed successfully")
	}

	zl.Info("HTTP server stopped")
}

// documentClassifier assembles the chunk-and-aggregate pipeline for an
// acquired classifier, pairing it with the model's own token codec.
func (wn *WeevilNode) documentClassifier(modelName string, clf zsc.Classifier) (*classification.DocumentClassifier, error) {
	return classification.NewDocumentClassifier(
		modelName,
		clf,
		wn.codecForModel(modelName),
		wn.splitterConfig,
		wn.logger.Named("classifier"),
	)
}

// codecForModel returns the token codec matched to a model: WordPiece built
// from the model's vocab.txt when present, BPE otherwise. Codecs are built
// once per model and reused.
func (wn *WeevilNode) codecForModel(modelName string) tokenizer.Codec {
	if c, ok := wn.codecs.Load(modelName); ok {
		return c.(tokenizer.Codec)
	}

	var codec tokenizer.Codec
	if path, ok := wn.registry.ModelPath(modelName); ok {
		vocabPath := filepath.Join(path, "vocab.txt")
		if _, err := os.Stat(vocabPath); err == nil {
			wp, err := tokenizer.NewWordPieceCodec(vocabPath)
			if err != nil {
				wn.logger.Warn("Failed to build WordPiece codec, falling back to BPE",
					zap.String("model", modelName),
					zap.Error(err))
			} else {
				codec = wp
			}
		}
	}
	if codec == nil {
		codec = wn.defaultCodec
	}

	actual, _ := wn.codecs.LoadOrStore(modelName, codec)
	return actual.(tokenizer.Codec)
}
