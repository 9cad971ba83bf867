// Package cmd provides the CLI commands for the storefront client.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront/internal/config"
)

var (
	cfgFile      string
	outputFormat string
	baseURL      string
	profile      string
	devMode      bool
)

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront - shop from the terminal",
	Long: `Storefront is a command-line client for the storefront backend.

It keeps you signed in between runs, mirrors your cart from the backend and
places cash-on-delivery orders.

Quick start:
  1. Run a local backend: storefront mock-backend
  2. Sign in:            storefront login -u customer@example.com
  3. Shop:               storefront products list
                         storefront cart add 1 --qty 2
                         storefront checkout --from-file delivery.yaml

Configuration:
  Config is loaded from storefront.yaml in the current directory,
  $HOME/.storefront/, or /etc/storefront/. A .env file in the current
  directory is loaded first.

  Environment variables can override config values with the STOREFRONT_ prefix.
  Example: STOREFRONT_API_BASE_URL=https://shop.example.com`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return checkOutputFormat(outputFormat)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", userMessage(err))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./storefront.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "backend base URL (overrides api.base_url)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "credential profile (overrides session.profile)")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging)")
}

func initConfig() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}
	config.InitViper(cfgFile)
}
