package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"journaling-go/internal/config"
	"journaling-go/internal/database"
	"journaling-go/internal/handlers"
	logger "journaling-go/internal/logging"
	"journaling-go/internal/models"
	"journaling-go/internal/repository"
	"journaling-go/internal/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	projectRoot string
	useDatabase bool
)

// app holds what every command needs once configuration is loaded.
type app struct {
	conf     *config.Config
	log      *zap.Logger
	pipeline *services.Pipeline
	runs     handlers.RunLister
}

var current *app

var rootCmd = &cobra.Command{
	Use:   "journaling",
	Short: "Journaling study data pipeline",
	Long: `Collects bot and survey exports, scores questionnaires, anonymises
journal content, applies the participant eligibility filter and writes the
group statistics. Every stage reads the previous numbered snapshot under the
processed directory and writes the next one.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(projectRoot, useDatabase)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if current != nil {
			_ = current.log.Sync()
		}
	},
}

func bootstrap(root string, withDB bool) (*app, error) {
	conf, err := config.Load(root, zap.NewNop())
	if err != nil {
		return nil, err
	}
	if withDB {
		conf.Database.Enabled = true
	}

	log, err := logger.Init(conf.Logging, conf.LogDir())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	reg, err := models.LoadRegistry(conf.ConfigPath(conf.Scoring.InstrumentsFile))
	if err != nil {
		return nil, err
	}

	a := &app{conf: conf, log: log}
	var store services.RunStore
	db, err := database.Open(conf.Database, log)
	switch {
	case errors.Is(err, database.ErrDisabled):
		log.Debug("Run archive disabled")
	case err != nil:
		return nil, err
	default:
		s := repository.NewStore(db)
		store, a.runs = s, s
	}
	a.pipeline = services.NewPipeline(conf, reg, store, log)
	return a, nil
}

func init() {
	wd, _ := os.Getwd()
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", wd, "project root holding config/ and data/")
	rootCmd.PersistentFlags().BoolVar(&useDatabase, "db", false, "archive the run in Postgres (overrides database.enabled)")

	rootCmd.AddCommand(runCmd, pullBotCmd, pullQualtricsCmd, serveCmd)
	for _, c := range stepCommands() {
		rootCmd.AddCommand(c)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
