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
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/antflydb/weevil/lib/modelhub"
	"github.com/antflydb/weevil/lib/zsc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List locally installed classifier models",
	Long: `List classifier models installed in the models directory.

Examples:
  # List local models
  weevil list

  # List models in a custom directory
  weevil list --models-dir /opt/antfly/models`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	dir := viper.GetString("models_dir")
	classifiersDir := filepath.Join(dir, modelhub.ClassifiersDirName)

	fmt.Printf("Local models in %s:\n\n", classifiersDir)

	models, err := modelhub.DiscoverModels(classifiersDir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSIZE\tONNX FILE\tUSABLE")

	for _, m := range models {
		usable := "no"
		if zsc.IsZSCModel(m.Path) {
			usable = "yes"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			m.Ref.FullName(),
			modelhub.FormatBytes(dirSize(m.Path)),
			m.OnnxFilename,
			usable,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(models) == 0 {
		fmt.Println("No models installed. Use 'weevil pull' to download one.")
	}

	return nil
}

func dirSize(dir string) int64 {
	var size int64
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
