package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/browser"
	"github.com/itchlabs/itch/internal/config"
	"github.com/itchlabs/itch/internal/extract"
	"github.com/itchlabs/itch/internal/navigate"
	"github.com/itchlabs/itch/internal/observability"
	"github.com/itchlabs/itch/internal/pipeline"
	"github.com/itchlabs/itch/internal/sink"
)

func newRunCmd() *cobra.Command {
	var (
		tasksPath   string
		schemasPath string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the extraction pipeline over the configured task list",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line values override
			// the config file and environment with the right precedence.
			if err := viper.BindPFlag("pipeline.lanes", cmd.Flags().Lookup("lanes")); err != nil {
				return err
			}
			if err := viper.BindPFlag("pipeline.max_retries", cmd.Flags().Lookup("max-retries")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("output.dir", cmd.Flags().Lookup("output-dir")); err != nil {
				return err
			}
			return viper.BindPFlag("output.stdout", cmd.Flags().Lookup("stdout"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			var cfg config.Config
			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to unmarshal config with flag overrides: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			summary, err := executeRun(ctx, &cfg, tasksPath, schemasPath, logger)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("run aborted by signal")
				}
				return err
			}

			fmt.Printf("\nRun complete: %d attempted, %d succeeded, %d failed, %d retried\n",
				summary.Attempted, summary.Succeeded, summary.Failed, summary.Retried)

			// Partial success is surfaced, not masked: any permanent task
			// failure makes the process exit non-zero.
			if summary.Failed > 0 {
				return fmt.Errorf("run finished with %d permanently failed task(s)", summary.Failed)
			}
			return nil
		},
	}

	runCmd.Flags().StringVar(&tasksPath, "tasks", "tasks.yaml", "path to the task list file")
	runCmd.Flags().StringVar(&schemasPath, "schemas", "schemas.yaml", "path to the extraction schema file")
	runCmd.Flags().Int("lanes", 1, "number of concurrent worker lanes (one browser each)")
	runCmd.Flags().Int("max-retries", 3, "attempts per task before it fails permanently")
	runCmd.Flags().Bool("headless", true, "run the browser headless")
	runCmd.Flags().String("output-dir", "raw_data", "directory for the JSONL output file")
	runCmd.Flags().Bool("stdout", false, "also stream events to stdout")

	return runCmd
}

// executeRun wires the pipeline together and drives it to completion.
func executeRun(ctx context.Context, cfg *config.Config, tasksPath, schemasPath string, logger *zap.Logger) (pipeline.Summary, error) {
	lib, err := extract.LoadLibrary(schemasPath)
	if err != nil {
		return pipeline.Summary{}, err
	}
	taskFile, err := pipeline.LoadTaskFile(tasksPath, lib)
	if err != nil {
		return pipeline.Summary{}, err
	}

	mgr := browser.NewManager(cfg.Browser, logger)
	defer func() {
		// Shutdown runs on a background context so cancellation of the run
		// still lets Chrome processes terminate cleanly.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Session manager shutdown did not finish cleanly.", zap.Error(err))
		}
	}()

	nav := navigate.New(cfg.Navigator, logger)
	ext := extract.New(logger)
	controller := pipeline.NewController(cfg.Pipeline, logger, mgr, nav, ext, lib)

	out, err := buildSink(ctx, cfg.Output, logger)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Warn("Failed to close sink.", zap.Error(err))
		}
	}()

	tasks := taskFile.Tasks
	if len(taskFile.Harvests) > 0 {
		harvested, err := pipeline.ExpandHarvests(ctx, mgr, nav, taskFile.Harvests, logger)
		if err != nil {
			return pipeline.Summary{}, fmt.Errorf("expanding harvests: %w", err)
		}
		tasks = append(tasks, harvested...)
	}
	tasks = pipeline.DedupeTasks(tasks, logger)

	logger.Info("Starting pipeline run.",
		zap.Int("tasks", len(tasks)),
		zap.Int("lanes", cfg.Pipeline.Lanes))

	return controller.RunToSink(ctx, tasks, out), nil
}

func buildSink(ctx context.Context, cfg config.OutputConfig, logger *zap.Logger) (schemas.Sink, error) {
	var sinks []schemas.Sink

	if cfg.File != "" {
		path := cfg.File
		if cfg.Dir != "" {
			path = filepath.Join(cfg.Dir, cfg.File)
		}
		jsonl, err := sink.NewJSONL(path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, jsonl)
	}
	if cfg.Stdout {
		sinks = append(sinks, sink.NewWriter(os.Stdout))
	}
	if cfg.Postgres.Enabled {
		pg, err := sink.NewPostgres(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, pg)
	}

	if len(sinks) == 0 {
		// Nothing configured still produces output somewhere visible.
		sinks = append(sinks, sink.NewWriter(os.Stdout))
	}

	out := sink.NewMulti(sinks...)
	if cfg.Images {
		return sink.NewImages(out, filepath.Join(cfg.Dir, "images"), logger)
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
