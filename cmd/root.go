// Package cmd implements the magpie command line
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "magpie",
	Short:        "Link bookmarking service",
	Long:         "Magpie stores links submitted by API clients, extracts and analyzes their content, and publishes the reviewed ones.",
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: ./magpie.yaml when present)")
}
