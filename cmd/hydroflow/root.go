package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pavletto/hydroflow/internal/log"
)

// appConfig is resolved once per invocation before any subcommand runs.
var appConfig Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hydroflow",
	Short: "Hydrological raster derivation over a DEM",
	Long: `Hydroflow runs hydrological raster workflows over a digital elevation model.

Every raster algorithm is delegated to WhiteboxTools; hydroflow decides the
sequence, the fill threshold, the pour-point snap distance and where each
output is written:
- Bulk Hydro Analysis: nine standard rasters (sink, fill, flow direction, ...)
- Optimized Watershed: watershed raster from a DEM and pour points

Configuration can be set via a YAML file, environment variables or flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cmd)
		if err != nil {
			return err
		}
		appConfig = cfg
		return log.Init(cfg.Debug)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()

	if err != nil {
		os.Exit(1)
	}
}

func addConfigFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "YAML config file")
	fs.String("whitebox", "whitebox_tools", "WhiteboxTools executable")
	fs.String("scratch-dir", "./scratch", "Directory for intermediate rasters")
	fs.Float64("stream-threshold", 1000, "Contributing cells at which a cell becomes stream")
	fs.Duration("tool-timeout", 0, "Timeout per WhiteboxTools run (0 = none)")
	fs.Bool("fix-flats", false, "Add a drainage gradient over flats in thresholded fills")
	fs.String("failure-policy", "keep", "Outputs of a failed run: keep or rollback")
	fs.String("map-manifest", "./map.yaml", "Map manifest outputs are added to")
	fs.Int("cache-size", 0, "Derived rasters kept in memory for reuse (0 = off)")
	fs.Bool("debug", false, "Debug logging")
}

func init() {
	// Global flags
	addConfigFlags(rootCmd.PersistentFlags())
}
