package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pavletto/hydroflow/hydro"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check watershed parameters without running anything",
	Long: `Validate optimized watershed parameters and list every invalid field.

Examples:
  hydroflow validate --dem dem.tif --z-limit 0 --resolution 10 --pour-points outlets.shp --workspace ./out`,
	Run: func(cmd *cobra.Command, args []string) {
		errs := hydro.ValidateWatershed(watershedInput(cmd.Flags()))
		if len(errs) == 0 {
			fmt.Println("Parameters are valid")
			return
		}
		for _, e := range errs {
			fmt.Printf("%s: %s\n", e.Field, e.Message)
		}
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addWatershedFlags(validateCmd.Flags())
}
