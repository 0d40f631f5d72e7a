// Package cmd provides the CLI commands for terrain-build.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"terrain-build/internal/config"
	"terrain-build/internal/logging"
)

// version is set at link time
var version = "0.1.0"

var (
	cfgFile string
	verbose bool
	noColor bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "terrain-build",
	Short: "Build terrain from survey data",
	Long: `terrain-build turns a raw elevation raster and vector survey data into a
corrected elevation raster and polygon layers.

Lakes are carved into the terrain, roads are graded, waterways flow downhill
and lake shores are protected from later changes.

Examples:
  terrain-build build --survey valley.hcl --elevation raw.asc
  terrain-build build --config terrain.hcl --survey valley.hcl --elevation raw.asc --out ./out
  terrain-build stages`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Add subcommands
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(stagesCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func initConfig() {
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		config.Set(cfg)
	}

	// Initialize logging
	cfg := config.Get()
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "terrain-build version %s\n", version)
	},
}
