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

package weevil

// Config holds the weevil node configuration.
type Config struct {
	// ApiUrl is the address the API server listens on, e.g. "http://0.0.0.0:4400"
	ApiUrl string `json:"api_url" mapstructure:"api_url"`

	// ModelsDir is the root directory for local models.
	// Classifier models are discovered under <ModelsDir>/classifiers/.
	ModelsDir string `json:"models_dir" mapstructure:"models_dir"`

	// DefaultModel is the classifier used when a request names no model.
	DefaultModel string `json:"default_model" mapstructure:"default_model"`

	// KeepAlive is how long to keep idle models loaded, as a duration string
	// ("5m", "1h"). Empty or "0" keeps models loaded forever.
	KeepAlive string `json:"keep_alive" mapstructure:"keep_alive"`

	// MaxLoadedModels limits how many classifier models are held in memory
	// at once (0 = unlimited).
	MaxLoadedModels int `json:"max_loaded_models" mapstructure:"max_loaded_models"`

	// PoolSize is the number of concurrent inference pipelines per model
	// (0 = min(NumCPU, 4)).
	PoolSize int `json:"pool_size" mapstructure:"pool_size"`

	// Preload lists classifier models to load at startup.
	Preload []string `json:"preload" mapstructure:"preload"`

	// MaxChunkTokens is the chunk size for long documents (0 = 900).
	MaxChunkTokens int `json:"max_chunk_tokens" mapstructure:"max_chunk_tokens"`

	// OverlapFraction is the fraction of MaxChunkTokens shared between
	// consecutive chunks (0 = 0.2, negative disables overlap).
	OverlapFraction float64 `json:"overlap_fraction" mapstructure:"overlap_fraction"`

	// MaxConcurrentRequests bounds in-flight classification requests
	// (0 = unlimited).
	MaxConcurrentRequests int `json:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`

	// MaxQueueSize bounds requests waiting for a concurrency slot
	// (0 = unlimited).
	MaxQueueSize int `json:"max_queue_size" mapstructure:"max_queue_size"`

	// RequestTimeout is the max time a request may wait in the queue,
	// as a duration string. Empty or "0" waits forever.
	RequestTimeout string `json:"request_timeout" mapstructure:"request_timeout"`
}
