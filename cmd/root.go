package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bacalhau-project/shellwright/cmd/run"
	"github.com/bacalhau-project/shellwright/cmd/transfer"
	"github.com/bacalhau-project/shellwright/pkg/config"
	"github.com/bacalhau-project/shellwright/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	envFile     string
	verboseMode bool
	closeLog    = func() {}
)

// NewRootCmd builds the command tree. Every call returns a fresh tree so tests can
// execute it more than once.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shellwright",
		Short: "Drive interactive SSH shells with password authentication",
		Long: `Shellwright logs in to hosts with a username and password, drives an
interactive PTY shell the way a person would, and copies files over SFTP.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Get().Sync()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.shellwright.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"dotenv file with SHELLWRIGHT_* variables")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")

	rootCmd.AddCommand(run.GetRunCmd())
	rootCmd.AddCommand(transfer.GetGetCmd())
	rootCmd.AddCommand(transfer.GetPutCmd())
	rootCmd.AddCommand(getVersionCmd())
	rootCmd.AddCommand(getCompletionCmd())

	return rootCmd
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { closeLog() }()
	return NewRootCmd().ExecuteContext(ctx)
}

// initConfig reads the env file, config file and environment, then sets up logging.
func initConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	v := viper.GetViper()
	if err := config.Setup(v, cfgFile); err != nil {
		return err
	}
	if err := v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
		return err
	}
	if err := v.BindPFlag("log.file_path", cmd.Root().PersistentFlags().Lookup("log-file")); err != nil {
		return err
	}
	if err := config.ReadInConfig(v); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if verboseMode {
		cfg.Log.Level = "debug"
	}
	cleanup, err := logger.Initialize(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	closeLog = cleanup

	l := logger.Get()
	if path := v.ConfigFileUsed(); path != "" {
		l.Debugf("Using config file: %s", path)
	}
	cmd.SetContext(logger.IntoContext(cmd.Context(), l))
	return nil
}
