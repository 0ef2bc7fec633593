package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deskclaw/deskclaw/config"
	"github.com/deskclaw/deskclaw/models"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage local model assets",
	Long: `Download and verify the model assets deskclaw can use locally.

Commands:
  download  Fetch a model (all registered models when no name given)
  verify    Check a model's files are present and complete
  list      List registered models`,
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download [model]",
	Short: "Download model files",
	Long: `Download a model's files into ` + "~/.deskclaw/models" + `. The primary
host is probed first; an unreachable primary switches to the mirror.

Examples:
  deskclaw models download qwen3-tts
  deskclaw models download            # all registered models`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModelsDownload,
}

var modelsVerifyCmd = &cobra.Command{
	Use:   "verify [model]",
	Short: "Verify model files",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModelsVerify,
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered models",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(strings.Join(models.Known(), "\n"))
	},
}

func init() {
	modelsCmd.AddCommand(modelsDownloadCmd)
	modelsCmd.AddCommand(modelsVerifyCmd)
	modelsCmd.AddCommand(modelsListCmd)
	rootCmd.AddCommand(modelsCmd)
}

func selectedModels(args []string) []string {
	if len(args) == 1 {
		return args
	}
	return models.Known()
}

func runModelsDownload(cmd *cobra.Command, args []string) error {
	d := models.NewDownloader(config.ModelsDir())
	for _, name := range selectedModels(args) {
		fmt.Printf("Downloading %s...\n", name)
		if err := d.Download(cmd.Context(), name); err != nil {
			return err
		}
		fmt.Printf("Downloaded %s to %s\n", name, d.Dir(name))
	}
	return nil
}

func runModelsVerify(cmd *cobra.Command, args []string) error {
	d := models.NewDownloader(config.ModelsDir())
	for _, name := range selectedModels(args) {
		if err := d.Verify(name); err != nil {
			return err
		}
		fmt.Printf("%s: ok\n", name)
	}
	return nil
}
