package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pavletto/hydroflow/hydro"
	"github.com/pavletto/hydroflow/internal/log"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the spatial analysis tools are installed",
	Run: func(cmd *cobra.Command, args []string) {
		deps, closeDeps, err := appConfig.CreateDeps()
		if err != nil {
			log.Fatalf("Failed to set up engine: %v", err)
		}
		defer closeDeps()

		err = hydro.RequireCapability(context.Background(), deps.Engine, hydro.SpatialAnalysis)
		switch {
		case err == nil:
			fmt.Printf("Spatial analysis available via %s\n", appConfig.Binary)
		case errors.Is(err, hydro.ErrCapabilityUnavailable):
			closeDeps()
			log.Fatalf("%v (is %s installed?)", err, appConfig.Binary)
		default:
			closeDeps()
			log.Fatalf("Capability check failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
