package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/comigor/groq-extension-go/internal/catalog"
	"github.com/comigor/groq-extension-go/internal/config"
	"github.com/comigor/groq-extension-go/internal/llm"
	"github.com/comigor/groq-extension-go/internal/logger"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	root := &cobra.Command{
		Use:          "extension",
		Short:        "Groq models as signed tool calls",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := godotenv.Load(); err != nil {
				logger.L.Debug("no .env file loaded", "error", err)
			}
			if configPath != "" {
				return os.Setenv("CONFIG_PATH", configPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (default ./config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(logLevel)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Print the model catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(logLevel)
			if err != nil {
				return err
			}
			return printModels(cmd, cfg)
		},
	}

	root.RunE = serveCmd.RunE
	root.AddCommand(serveCmd, modelsCmd)
	return root
}

// loadConfig reads and validates the configuration and sets up logging.
// A missing API key, secret or key id stops the process here.
func loadConfig(logLevel string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		logger.L.Error("invalid configuration", "error", err)
		return nil, err
	}
	return cfg, nil
}

func printModels(cmd *cobra.Command, cfg *config.Config) error {
	overlay, err := catalog.OverlayFromConfig(cfg.Catalog.Models)
	if err != nil {
		return err
	}
	cache := catalog.NewCache(llm.NewClient(cfg.LLM), overlay)
	models, err := cache.List(cmd.Context())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDISPLAY NAME\tPUBLISHER\tTASKS")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", m.Name, m.DisplayName, m.Publisher, m.InferenceTasks)
	}
	return tw.Flush()
}
