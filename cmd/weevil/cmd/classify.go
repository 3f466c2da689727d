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
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/antflydb/weevil/lib/chunking"
	"github.com/antflydb/weevil/lib/classification"
	"github.com/antflydb/weevil/lib/modelhub"
	"github.com/antflydb/weevil/lib/tokenizer"
	"github.com/antflydb/weevil/lib/zsc"
	"github.com/bytedance/sonic/encoder"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var classifyCategories []string

var classifyCmd = &cobra.Command{
	Use:   "classify <file>",
	Short: "Classify a document from the command line",
	Long: `Classify a single document without starting the server.

Reads the document from a file (or stdin with "-"), loads the classifier
model directly, and prints the classification result as JSON.

Examples:
  # Classify with the default categories
  weevil classify --model MoritzLaurer/deberta-v3-base-mnli report.txt

  # Custom categories
  weevil classify --model my-org/my-nli --categories "Invoice,Contract,Memo" doc.txt

  # From stdin
  cat doc.txt | weevil classify --model my-org/my-nli -`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().String("model", "", "classifier model name (owner/name)")
	classifyCmd.Flags().StringSliceVar(&classifyCategories, "categories", nil,
		"candidate categories (defaults to the built-in set)")
	classifyCmd.Flags().Int("max-chunk-tokens", 0, "chunk size for long documents (0 = 900)")
	classifyCmd.Flags().Float64("overlap-fraction", 0, "overlap between consecutive chunks (0 = 0.2)")
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	modelName, _ := cmd.Flags().GetString("model")
	maxChunkTokens, _ := cmd.Flags().GetInt("max-chunk-tokens")
	overlapFraction, _ := cmd.Flags().GetFloat64("overlap-fraction")

	if modelName == "" {
		return fmt.Errorf("--model is required")
	}

	text, err := readDocument(args[0])
	if err != nil {
		return err
	}

	classifiersDir := filepath.Join(viper.GetString("models_dir"), modelhub.ClassifiersDirName)
	modelPath := filepath.Join(classifiersDir, filepath.FromSlash(modelName))
	if !zsc.IsZSCModel(modelPath) {
		return fmt.Errorf("no classifier model at %s (run 'weevil pull' first)", modelPath)
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	clf, err := zsc.NewPooledHugotZSC(modelPath, 1, logger.Named(modelName))
	if err != nil {
		return fmt.Errorf("loading classifier: %w", err)
	}
	defer func() { _ = clf.Close() }()

	codec, err := codecForModelDir(modelPath)
	if err != nil {
		return err
	}

	dc, err := classification.NewDocumentClassifier(modelName, clf, codec, chunking.SplitterConfig{
		MaxChunkTokens:  maxChunkTokens,
		OverlapFraction: overlapFraction,
	}, logger)
	if err != nil {
		return err
	}

	result := dc.ClassifyDocument(ctx, text, classifyCategories)

	enc := encoder.NewStreamEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readDocument(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	return string(data), nil
}

// codecForModelDir prefers the model's own WordPiece vocabulary, falling back
// to the embedded BPE dictionaries.
func codecForModelDir(modelPath string) (tokenizer.Codec, error) {
	vocabPath := filepath.Join(modelPath, "vocab.txt")
	if _, err := os.Stat(vocabPath); err == nil {
		if wp, err := tokenizer.NewWordPieceCodec(vocabPath); err == nil {
			return wp, nil
		}
	}
	return tokenizer.NewBPECodec("")
}
