package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"journaling-go/internal/handlers"
	"journaling-go/internal/router"
	"journaling-go/internal/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runCmd executes the whole pipeline, or the listed steps in pipeline order.
var runCmd = &cobra.Command{
	Use:   "run [step...]",
	Short: "Run the pipeline steps in order",
	Long: "Runs every step, or only the named ones, in fixed order:\n  " +
		strings.Join(services.Steps, ", "),
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.pipeline.Run(cmd.Context(), commandLine(cmd, args), args...)
	},
}

var stepHelp = map[string]string{
	services.StepIngest:      "Append newly exported journals to snapshot 1",
	services.StepScore:       "Score the survey exports and flag suspicious responses",
	services.StepEntries:     "Merge journals and summaries into the entry table",
	services.StepAnonymise:   "Anonymise entries not yet anonymised",
	services.StepUtterances:  "Split anonymised entries into utterances",
	services.StepCombine:     "Join survey totals with journals and utterances",
	services.StepQualify:     "Keep rows of participants with an eligible outcome",
	services.StepFinalFilter: "Apply the participant eligibility filter",
	services.StepAnalyse:     "Write group statistics and figures",
}

// stepCommands exposes each pipeline step as its own command.
func stepCommands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(services.Steps))
	for _, step := range services.Steps {
		step := step
		cmds = append(cmds, &cobra.Command{
			Use:   step,
			Short: stepHelp[step],
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return current.pipeline.Run(cmd.Context(), commandLine(cmd, args), step)
			},
		})
	}
	return cmds
}

var pullBotCmd = &cobra.Command{
	Use:   "pull-bot",
	Short: "Download the bot backend tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.pipeline.PullBot(cmd.Context())
	},
}

var pullQualtricsCmd = &cobra.Command{
	Use:   "pull-qualtrics",
	Short: "Export the configured surveys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.pipeline.PullQualtrics(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the results read-only over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), current)
	},
}

func serve(ctx context.Context, a *app) error {
	r := router.Setup(a.conf, a.log,
		handlers.NewResultsHandler(a.conf, a.log),
		handlers.NewRunsHandler(a.runs, a.log))

	srv := &http.Server{
		Addr:              ":" + a.conf.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Server listening on http://localhost" + srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to run server: %w", err)
	case <-ctx.Done():
		a.log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("Server shutdown failed", zap.Error(err))
			return err
		}
		return nil
	}
}

func commandLine(cmd *cobra.Command, args []string) string {
	return strings.TrimSpace(cmd.CommandPath() + " " + strings.Join(args, " "))
}
