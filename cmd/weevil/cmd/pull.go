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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/antflydb/weevil/lib/modelhub"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pullCmd = &cobra.Command{
	Use:   "pull <model-ref> [model-ref...]",
	Short: "Pull classifier model(s) from HuggingFace",
	Long: `Download one or more ONNX zero-shot classifier models from HuggingFace Hub.

Models are stored under the models directory:
  models/classifiers/<owner>/<model-name>/

Variants:
  (default)  - full precision
  fp16       - half precision (~50% smaller)
  q4         - 4-bit quantized
  q4f16      - 4-bit quantized with FP16
  quantized  - INT8 quantized

Examples:
  # Pull an NLI model for zero-shot classification
  weevil pull hf:MoritzLaurer/deberta-v3-base-zeroshot-v2.0

  # The hf: prefix is optional
  weevil pull facebook/bart-large-mnli

  # Pull a quantized variant (smaller download)
  weevil pull --variant quantized hf:MoritzLaurer/deberta-v3-base-zeroshot-v2.0

  # Pull to a custom directory
  weevil pull --models-dir /opt/antfly/models hf:facebook/bart-large-mnli`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)

	pullCmd.Flags().String("variant", "",
		"ONNX variant (fp16, q4, q4f16, quantized)")
	pullCmd.Flags().String("hf-token", "",
		"HuggingFace API token for gated models (or use HF_TOKEN env var)")
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	variant, _ := cmd.Flags().GetString("variant")
	hfToken, _ := cmd.Flags().GetString("hf-token")

	if !modelhub.IsValidVariant(variant) {
		return fmt.Errorf("invalid variant %q, valid options: fp16, q4, q4f16, quantized", variant)
	}

	if hfToken == "" {
		hfToken = os.Getenv("HF_TOKEN")
	}

	client := modelhub.NewHuggingFaceClient(
		modelhub.WithHFToken(hfToken),
		modelhub.WithHFProgressHandler(printProgress),
	)

	destDir := viper.GetString("models_dir")

	for _, modelRef := range args {
		repoID, isHF := modelhub.ParseHuggingFaceRef(modelRef)
		if !isHF {
			repoID = modelRef
		}

		fmt.Printf("\n=== Pulling %s ===\n", repoID)
		fmt.Printf("Variant: %s\n", modelhub.VariantDescription(variant))
		fmt.Println("Downloading files...")

		if err := client.Pull(ctx, repoID, destDir, variant); err != nil {
			return fmt.Errorf("failed to pull %s: %w", repoID, err)
		}

		fmt.Printf("\n✓ Model pulled successfully\n")
	}

	return nil
}

func printProgress(downloaded, total int64, filename string) {
	if downloaded == 0 {
		fmt.Printf("  %s ...\n", filename)
		return
	}
	fmt.Printf("  %s (%s)\n", filename, modelhub.FormatBytes(downloaded))
}
