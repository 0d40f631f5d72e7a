// Package cmd - build command
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"terrain-build/adapters/asc"
	"terrain-build/adapters/survey"
	"terrain-build/core/engine"
	"terrain-build/core/scratch"
	"terrain-build/core/ui"
	"terrain-build/internal/config"
	"terrain-build/internal/logging"
)

var (
	surveyFile    string
	elevationFile string
	outputDir     string
	saveMasks     bool
	skipLayers    bool
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the corrected elevation of an area",
	Long: `Run the terrain pipeline over a survey file and a raw elevation raster.

The corrected elevation is written as an ESRI ASCII grid to <out>/elevation.asc.
With --save-masks the lake masks are written as PNG images to <out>/masks.

Examples:
  terrain-build build --survey valley.hcl --elevation raw.asc
  terrain-build build --survey valley.hcl --elevation raw.asc --out ./out --save-masks`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&surveyFile, "survey", "s", "", "survey file (HCL)")
	buildCmd.Flags().StringVarP(&elevationFile, "elevation", "e", "", "raw elevation raster (ESRI ASCII)")
	buildCmd.Flags().StringVarP(&outputDir, "out", "o", "", "output directory (default from config)")
	buildCmd.Flags().BoolVar(&saveMasks, "save-masks", false, "write lake masks next to the raster")
	buildCmd.Flags().BoolVar(&skipLayers, "skip-layers", false, "build the elevation only")
	_ = buildCmd.MarkFlagRequired("survey")
	_ = buildCmd.MarkFlagRequired("elevation")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer logging.Sync()

	cfg := *config.Get()
	if saveMasks {
		cfg.Output.SaveMasks = true
	}
	if outputDir != "" {
		cfg.Output.Directory = outputDir
	}

	w := ui.NewWriter(cmd.OutOrStdout(), noColor)
	if verbose {
		w.SetVerbosity(2)
	}

	src, err := survey.Load(surveyFile)
	if err != nil {
		logging.Error("failed to load survey", zap.String("path", surveyFile), zap.Error(err))
		return fmt.Errorf("failed to load survey: %w", err)
	}
	w.Info("Loaded %s", surveyFile)
	for _, category := range src.SortedCategories() {
		w.Debug("%s: %d", category, len(src.Features(category)))
		logging.Debug("survey features", zap.String("category", string(category)), zap.Int("count", len(src.Features(category))))
	}

	eng, err := engine.NewEngine(&cfg, asc.FileSource{Path: elevationFile}, logging.Logger)
	if err != nil {
		return err
	}

	storage := scratch.NewMemoryStorage()
	defer storage.Close()

	runner := ui.NewBuildRunner(w, eng)
	result, err := runner.Run(ctx, engine.BuildRequest{
		Source:     src,
		Scratch:    storage,
		SkipLayers: skipLayers,
	})
	if err != nil {
		return err
	}
	runner.DisplayResult(result)
	if report := result.Elevation.Report; report.Conflicts > 0 || report.Unresolved > 0 {
		logging.Warn("elevation constraints were not all honoured",
			zap.Int("conflicts", report.Conflicts),
			zap.Int("unresolved", report.Unresolved))
	}

	rasterPath := filepath.Join(cfg.Output.Directory, "elevation.asc")
	if err := asc.WriteFile(rasterPath, result.Elevation.Grid); err != nil {
		return fmt.Errorf("failed to write %s: %w", rasterPath, err)
	}
	w.Success("Wrote %s", rasterPath)

	if cfg.Output.SaveMasks {
		maskDir := filepath.Join(cfg.Output.Directory, "masks")
		if err := scratch.SaveAll(result.Scratch, maskDir); err != nil {
			return fmt.Errorf("failed to write masks: %w", err)
		}
		w.Success("Wrote %d masks to %s", len(result.Scratch.Names()), maskDir)
	}

	logging.Info("build written",
		zap.String("run_id", result.RunID),
		zap.String("raster", rasterPath))
	return nil
}
