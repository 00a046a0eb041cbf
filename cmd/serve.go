package cmd

import (
	"fmt"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tagforge/internal/apihandlers"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run tagforge as an HTTP API server",
	Long: `Starts an HTTP server that runs analyses on request, queues them for the
worker, and serves stored reports, job status, the rule checker, health and
Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		cfg := appInstance.Config

		if cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.Default() // Includes logger and recovery middleware

		apihandlers.NewAPIHandler(apihandlers.Deps{
			Analyzer:  appInstance.Orchestrator,
			Reports:   appInstance.Store,
			Jobs:      appInstance.Store,
			JobClient: appInstance.JobClient,
			Health:    appInstance.Store,
			Rules:     cfg.Pipeline.Rules,
		}).Register(router)

		listenAddr := cfg.Server.Address
		if serveAddr != "" {
			listenAddr = serveAddr
		}
		log.Infof("Starting tagforge API server on http://%s", listenAddr)

		// router.Run blocks unless an error occurs
		if err := router.Run(listenAddr); err != nil {
			log.Errorf("Failed to run API server: %v", err)
			return fmt.Errorf("failed to run API server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides server.address (e.g. ':8080')")
}
