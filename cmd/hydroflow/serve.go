package main

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavletto/hydroflow/hydro"
	"github.com/pavletto/hydroflow/internal/log"
)

const (
	readTimeout = 10 * time.Second
	idleTimeout = 120 * time.Second
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP API server",
	Long: `Start an HTTP server that provides REST API endpoints for:
  - POST /bulk - Bulk hydro analysis
  - POST /watershed - Optimized watershed
  - POST /validate/watershed - Field validation only
  - GET /health - Health check endpoint

Runs are synchronous: a request returns when its pipeline finishes.
The listen address comes from --addr, HYDROFLOW_ADDR or the config file.`,
	Run: func(cmd *cobra.Command, args []string) {
		deps, closeDeps, err := appConfig.CreateDeps()
		if err != nil {
			log.Fatalf("Failed to set up engine: %v", err)
		}
		defer closeDeps()

		s := &hydro.Server{Deps: deps}

		addr := appConfig.Addr

		srv := &http.Server{
			Addr:        addr,
			Handler:     s.Router(),
			ReadTimeout: readTimeout,
			IdleTimeout: idleTimeout,
		}

		log.Infow("starting server", "addr", addr, "whitebox", appConfig.Binary,
			"scratch_dir", appConfig.ScratchDir, "failure_policy", appConfig.FailurePolicy)
		if err := srv.ListenAndServe(); err != nil {
			closeDeps()
			log.Fatalf("Server stopped: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
}
