package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/config"
	"github.com/aretw0/espalier/pkg/observability"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/recovery"
)

var rootCmd = &cobra.Command{
	Use:   "espalier",
	Short: "Espalier is a workflow orchestration engine",
	Long:  `Espalier coordinates named agents through declared workflow steps, with error recovery, conditions and observability.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("workflow", "w", "workflow.yaml", "Path to the workflow definition (YAML or JSON)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
}

// loadEngine builds an engine from the workflow file named by the flags.
// Agents referenced by the definition are stubbed with echo agents; embed
// the library to supply real ones.
func loadEngine(cmd *cobra.Command) (*espalier.Engine, error) {
	path, _ := cmd.Flags().GetString("workflow")
	verbose, _ := cmd.Flags().GetBool("verbose")

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := logging.New(level)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	agents := make(map[string]ports.Agent)
	for _, step := range cfg.Steps {
		for _, name := range step.Agents {
			agents[name] = echoAgent(name)
		}
	}

	return espalier.New(cfg,
		espalier.WithAgents(agents),
		espalier.WithLogger(logger),
		espalier.WithObserver(observability.NewConsole(logger)),
		espalier.WithRecovery(recovery.NewSystem()),
	)
}

func echoAgent(name string) ports.Agent {
	return ports.AgentFunc(func(ctx context.Context, input any, meta map[string]any) (any, error) {
		return fmt.Sprintf("%s: %v", name, input), nil
	})
}
