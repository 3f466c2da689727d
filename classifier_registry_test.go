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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassifierRegistryAcquireUnknownModel(t *testing.T) {
	registry, err := NewClassifierRegistry(ClassifierRegistryConfig{
		ModelsDir: t.TempDir(),
	}, nil, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = registry.Close() }()

	_, err = registry.Acquire("acme/no-such-model")
	require.Error(t, err)
	// Callers distinguish missing models from load failures by the sentinel.
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.Contains(t, err.Error(), "acme/no-such-model")
}

func TestClassifierRegistryEmptyModelsDir(t *testing.T) {
	registry, err := NewClassifierRegistry(ClassifierRegistryConfig{}, nil, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = registry.Close() }()

	assert.Empty(t, registry.List())
	assert.Empty(t, registry.ListLoaded())
}
