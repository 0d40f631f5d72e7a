// Package cmd - stages command
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"terrain-build/core/build"
	"terrain-build/core/catalog"
	"terrain-build/core/ui"
	"terrain-build/internal/config"
)

// stagesCmd lists the registered stages
var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the registered stages in dependency order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, cat, err := catalog.New(catalog.Options{Roads: config.Get().Roads})
		if err != nil {
			return err
		}
		order, err := cat.Order()
		if err != nil {
			return err
		}

		w := ui.NewWriter(cmd.OutOrStdout(), noColor)
		table := w.NewTable("#", "Kind", "Layer", "Depends on", "Description")
		for i, kind := range order {
			entry, _ := cat.Get(kind)
			layer := ""
			if entry.Layer {
				layer = "yes"
			}
			table.AddRow(fmt.Sprintf("%d", i+1), string(kind), layer, joinKinds(entry.DependsOn), entry.Description)
		}
		table.Render()

		stats := cat.Stats()
		w.Println("")
		w.Println("%d stages registered, %d polygon layers, %d roots", reg.Len(), stats.Layers, stats.Roots)
		return nil
	},
}

func joinKinds(kinds []build.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
