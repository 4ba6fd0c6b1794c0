package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maauso/genmedia-relay/internal/bootstrap"
	"github.com/maauso/genmedia-relay/internal/config"
)

// app carries what every subcommand needs once the root has initialized.
type app struct {
	cfg    *config.StudioConfig
	logger *slog.Logger
	deps   *bootstrap.StudioDependencies
}

// globalFlags override the environment configuration.
type globalFlags struct {
	relayURL string
	mode     string
	output   string
}

func newRootCmd() *cobra.Command {
	var (
		flags globalFlags
		a     = &app{}
	)

	root := &cobra.Command{
		Use:           "studio",
		Short:         "Generate images and videos through the media relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.relayURL, "relay-url", "", "relay endpoint URL (overrides RELAY_URL)")
	root.PersistentFlags().StringVar(&flags.mode, "mode", "", "credential mode: server or client (overrides RELAY_CREDENTIAL_MODE)")
	root.PersistentFlags().StringVarP(&flags.output, "output-dir", "o", "", "directory for generated files (overrides OUTPUT_DIR)")

	root.AddCommand(
		newCheckCmd(a),
		newKeyCmd(a),
		newImageCmd(a),
		newEditCmd(a),
		newVideoCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command, flags globalFlags) error {
	cfg, err := config.LoadStudio()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.relayURL != "" {
		cfg.RelayURL = flags.relayURL
	}
	if flags.mode != "" {
		cfg.CredentialMode = flags.mode
	}
	if flags.output != "" {
		cfg.OutputDir = flags.output
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Logs go to stderr so stdout carries only results.
	logger := cfg.NewLoggerTo(cmd.ErrOrStderr())
	slog.SetDefault(logger)
	logger.Debug("studio configured", slog.String("config", cfg.String()))

	deps, err := bootstrap.NewStudioDependencies(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.deps = deps
	return nil
}
