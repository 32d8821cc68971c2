package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pavletto/hydroflow/hydro"
	"github.com/pavletto/hydroflow/internal/log"
)

// bulkCmd represents the bulk command
var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Derive the standard hydrological rasters from a DEM",
	Long: `Derive sink, filled DEM, flow direction, flow accumulation, stream,
flow distance, flow length, stream link and stream order rasters from a DEM.

The filled DEM is bounded by the mean sink depth. Each output is written as
soon as it is computed.

Examples:
  hydroflow bulk --dem dem.tif --workspace ./out
  hydroflow bulk --dem dem.tif --workspace ./hydro.gpkg --add-to-map`,
	Run: func(cmd *cobra.Command, args []string) {
		dem, _ := cmd.Flags().GetString("dem")
		ws, _ := cmd.Flags().GetString("workspace")
		addToMap, _ := cmd.Flags().GetBool("add-to-map")

		deps, closeDeps, err := appConfig.CreateDeps()
		if err != nil {
			log.Fatalf("Failed to set up engine: %v", err)
		}
		defer closeDeps()

		res, err := hydro.RunBulk(context.Background(), deps, hydro.BulkInput{
			DEM:       dem,
			Workspace: ws,
			AddToMap:  addToMap,
		})
		if err != nil {
			closeDeps()
			log.Fatalf("Bulk hydro analysis failed: %v", err)
		}

		fmt.Printf("Run: %s\n", res.RunID)
		fmt.Printf("Mean sink depth: %.4f\n", res.MeanSinkDepth)
		for _, out := range res.Outputs {
			fmt.Printf("  %-12s %s\n", out.Name, out.Path)
		}
		printRegistration(res.Registration)
	},
}

func printRegistration(reg hydro.Registration) {
	if len(reg.Registered) > 0 {
		fmt.Printf("Added to map: %d\n", len(reg.Registered))
	}
	for i, path := range reg.Failed {
		fmt.Printf("Could not add %s to map: %v\n", path, reg.Errors[i])
	}
}

func init() {
	rootCmd.AddCommand(bulkCmd)

	bulkCmd.Flags().String("dem", "", "Input DEM raster (required)")
	bulkCmd.Flags().String("workspace", "", "Output directory or database container (required)")
	bulkCmd.Flags().Bool("add-to-map", false, "Add every output to the map manifest")
	bulkCmd.MarkFlagRequired("dem")
	bulkCmd.MarkFlagRequired("workspace")
}
