// Package cli wires the digitforge subcommands.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"digitforge/internal/config"
	"digitforge/internal/logger"
)

// app carries what PersistentPreRunE resolves for the running subcommand.
type app struct {
	v      *viper.Viper
	logger *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "digitforge",
		Short:         "Train MNIST classifiers and one-hot CVAEs, and sample digits from them",
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before every subcommand: env file, then config file, then the
		// flags of the subcommand being executed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			pflags := cmd.Flags()
			envFile, _ := pflags.GetString("env-file")
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			a.v = config.NewViper()
			cfgFile, _ := pflags.GetString("config")
			if err := config.ReadFile(a.v, cfgFile); err != nil {
				return err
			}
			if err := a.v.BindPFlags(pflags); err != nil {
				return err
			}
			a.v.SetDefault("environment", logger.EnvDevelopment)
			l, err := logger.New(a.v.GetString("environment"))
			if err != nil {
				return err
			}
			a.logger = l.With(zap.String("command", cmd.Name()))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pflags := root.PersistentFlags()
	pflags.String("config", "", "Path to a YAML config file")
	pflags.String("env-file", "", "Path to an env file (defaults to ./.env when present)")
	pflags.String("environment", logger.EnvDevelopment, "Logging environment: development, production or test")

	root.AddCommand(
		newTrainClassifierCmd(a),
		newGenerateSamplesCmd(a),
		newTrainCVAECmd(a),
		newDownloadCmd(a),
	)
	root.CompletionOptions.HiddenDefaultCmd = true
	return root
}

// Execute runs the command tree with args under ctx.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
