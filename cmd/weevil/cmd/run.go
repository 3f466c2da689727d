// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/antflydb/weevil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the weevil server",
	Long:  `Start the weevil server for zero-shot document classification.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("api-url", "http://0.0.0.0:4400", "address the API server listens on")
	runCmd.Flags().String("default-model", "", "classifier used when a request names no model")
	runCmd.Flags().String("keep-alive", "5m", "how long to keep idle models loaded (0 = forever)")
	runCmd.Flags().Int("max-loaded-models", 0, "max classifier models in memory (0 = unlimited)")
	runCmd.Flags().Int("pool-size", 0, "concurrent inference pipelines per model (0 = auto)")
	runCmd.Flags().StringSlice("preload", nil, "classifier models to load at startup")
	runCmd.Flags().Int("max-chunk-tokens", 0, "chunk size for long documents (0 = 900)")
	runCmd.Flags().Float64("overlap-fraction", 0, "overlap between consecutive chunks (0 = 0.2)")
	runCmd.Flags().Int("max-concurrent-requests", 0, "in-flight request limit (0 = unlimited)")
	runCmd.Flags().Int("max-queue-size", 0, "waiting request limit (0 = unlimited)")
	runCmd.Flags().String("request-timeout", "", "max time a request may wait in queue")

	mustBindPFlag("api_url", runCmd.Flags().Lookup("api-url"))
	mustBindPFlag("default_model", runCmd.Flags().Lookup("default-model"))
	mustBindPFlag("keep_alive", runCmd.Flags().Lookup("keep-alive"))
	mustBindPFlag("max_loaded_models", runCmd.Flags().Lookup("max-loaded-models"))
	mustBindPFlag("pool_size", runCmd.Flags().Lookup("pool-size"))
	mustBindPFlag("preload", runCmd.Flags().Lookup("preload"))
	mustBindPFlag("max_chunk_tokens", runCmd.Flags().Lookup("max-chunk-tokens"))
	mustBindPFlag("overlap_fraction", runCmd.Flags().Lookup("overlap-fraction"))
	mustBindPFlag("max_concurrent_requests", runCmd.Flags().Lookup("max-concurrent-requests"))
	mustBindPFlag("max_queue_size", runCmd.Flags().Lookup("max-queue-size"))
	mustBindPFlag("request_timeout", runCmd.Flags().Lookup("request-timeout"))
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Running as weevil")

	cfg := weevil.Config{
		ApiUrl:                viper.GetString("api_url"),
		ModelsDir:             viper.GetString("models_dir"),
		DefaultModel:          viper.GetString("default_model"),
		KeepAlive:             viper.GetString("keep_alive"),
		MaxLoadedModels:       viper.GetInt("max_loaded_models"),
		PoolSize:              viper.GetInt("pool_size"),
		Preload:               viper.GetStringSlice("preload"),
		MaxChunkTokens:        viper.GetInt("max_chunk_tokens"),
		OverlapFraction:       viper.GetFloat64("overlap_fraction"),
		MaxConcurrentRequests: viper.GetInt("max_concurrent_requests"),
		MaxQueueSize:          viper.GetInt("max_queue_size"),
		RequestTimeout:        viper.GetString("request_timeout"),
	}

	readyC := make(chan struct{})
	go func() {
		<-readyC
		logger.Info("Weevil is ready")
	}()

	weevil.RunAsWeevil(ctx, logger, cfg, readyC)
	return nil
}
