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

// Command weevil runs the zero-shot document classification service.
//
// Weevil classifies documents into arbitrary categories using NLI models,
// chunking long documents and aggregating per-chunk predictions.
//
// Usage:
//
//	weevil run                      # Start the server
//	weevil classify <file>          # Classify a document from the CLI
//	weevil pull hf:<owner>/<repo>   # Download a model from HuggingFace
//	weevil list                     # List local models
package main

import (
	"runtime"

	"github.com/antflydb/weevil/cmd/weevil/cmd"
)

// https://goreleaser.com/cookbooks/using-main.version/
//
// main.version: Current Git tag (the v prefix is stripped) or the name of the
// snapshot, if you're using the --snapshot flag
var version = "dev"

func main() {
	runtime.SetMutexProfileFraction(1) // Enable mutex profiling
	runtime.SetBlockProfileRate(1)     // Sample every blocking event
	cmd.Version = version
	cmd.Execute()
}
