package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tagforge/internal/app"
	"tagforge/internal/worker"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background job worker",
	Long:  `Starts the asynq worker process that runs queued repository analyses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get application context: %w", err)
		}
		if err := appInstance.Config.ValidateWorker(); err != nil {
			return fmt.Errorf("invalid worker config: %w", err)
		}
		if err := runWorker(appInstance); err != nil {
			log.Errorf("Worker exited with error: %v", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

// runWorker runs the asynq server until SIGINT or SIGTERM.
func runWorker(appInstance *app.App) error {
	cfg := appInstance.Config

	srv := asynq.NewServer(
		appInstance.RedisOpt(),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues:      cfg.Worker.Queues,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				id, _ := asynq.GetTaskID(ctx)
				log.Errorf("Task failed: task_id=%s type=%s payload=%s err=%v",
					id, task.Type(), string(task.Payload()), err)
			}),
			Logger: log.StandardLogger(),
		},
	)

	mux := asynq.NewServeMux()
	worker.RegisterHandlers(mux, worker.AnalysisDeps{
		Analyzer: appInstance.Orchestrator,
		Reports:  appInstance.Store,
		Jobs:     appInstance.Store,
	})

	log.Infof("Starting asynq worker (concurrency %d, queues %v)...", cfg.Worker.Concurrency, cfg.Worker.Queues)
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	log.Info("Shutdown signal received, waiting for running jobs...")
	srv.Shutdown()
	log.Info("Worker shutdown complete.")
	return nil
}
