package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-tracker/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tracker and its web API",
	Long: `Start the attendance tracker.
Runs the session scheduler, the recognition worker and the attendance
coordinator, and serves the REST API and the operator dashboard.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, log, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.Config.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.Config.Web.Host = host
	}

	server := web.NewServer(a)

	runErr := make(chan error, 1)
	go func() {
		runErr <- a.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
		case err := <-runErr:
			if err != nil {
				log.Error("tracker stopped", "error", err)
			}
		}
		cancel()
		if err := a.Trainer.SaveIndex(); err != nil {
			log.Warn("failed to save student index", "error", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", "error", err)
		}
	}()

	fmt.Printf("Starting Attendance Tracker on http://%s\n", a.Config.Web.Addr())
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
