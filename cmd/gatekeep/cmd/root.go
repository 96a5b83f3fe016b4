// Package cmd provides the gatekeep CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelops/gatekeep/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gatekeep",
	Short: "Gatekeep - content-safety gateway for LLM traffic",
	Long: `Gatekeep is a content-safety gateway that sits in front of
OpenAI-compatible chat completions, scanning every request and response
for security, compliance and data-leakage risk before it reaches a model
or a caller.

Quick start:
  1. Create a config file: gatekeep.yaml
  2. Run: gatekeep serve

Configuration:
  Config is loaded from gatekeep.yaml in the current directory,
  $HOME/.gatekeep/, or /etc/gatekeep/.

  Environment variables can override config values with the GATEKEEP_
  prefix. Example: GATEKEEP_SERVER_PROXY_ADDR=:9090

Commands:
  serve     Start one or more of the admin/detection/proxy HTTP surfaces
  version   Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./gatekeep.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
