package run

import (
	"fmt"
	"strings"

	"github.com/bacalhau-project/shellwright/cmd/common"
	"github.com/bacalhau-project/shellwright/pkg/sshutils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func GetRunCmd() *cobra.Command {
	config := &RunConfig{}

	cmd := &cobra.Command{
		Use:   "run [flags] -- COMMAND [ARGS...]",
		Short: "Run a command in an interactive shell on one or more hosts",
		Long: `Log in to each host with a password, open an interactive PTY shell, run the
command and print its output with the echoed command and prompt removed.

Interactive sub-prompts can be answered with --reply-file, a YAML list of
{expect, input} pairs. With more than one --host the hosts are handled
concurrently and a result table is printed.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return common.BindConnectionFlags(viper.GetViper(), cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Command = strings.Join(args, " ")
			return runRun(cmd, config)
		},
	}

	// Add flags
	cmd.Flags().StringSliceVarP(&config.Hosts, "host", "H", nil,
		"target host; repeat or comma-separate for several (default: ssh.host from config)")
	cmd.Flags().StringVar(&config.Expect, "expect", "",
		"regular expression that marks the end of the output (default: the session prompt)")
	cmd.Flags().StringVar(&config.ReplyFile, "reply-file", "",
		"YAML file with {expect, input} replies for interactive prompts")
	cmd.Flags().DurationVar(&config.Timeout, "timeout", sshutils.DefaultRunTimeout,
		"how long to wait for each step; 0 skips the command")
	cmd.Flags().IntVar(&config.Parallelism, "parallel", DefaultParallelism,
		"maximum number of hosts handled at once")
	common.AddConnectionFlags(cmd.Flags())

	return cmd
}

func runRun(cmd *cobra.Command, config *RunConfig) error {
	cfg, err := common.LoadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if len(config.Hosts) == 0 && cfg.SSH.Host != "" {
		config.Hosts = []string{cfg.SSH.Host}
	}

	replies, err := NewReplyParser().ParseFile(config.ReplyFile)
	if err != nil {
		return err
	}
	config.Replies = append(config.Replies, replies...)

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	password, err := common.ResolvePassword(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	runner, err := NewRunner(config, func(host string) (*sshutils.Session, error) {
		return common.NewSession(cfg, host, password)
	})
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	if len(config.Hosts) > 1 {
		hs := newHostSpinner(cmd.ErrOrStderr(), len(config.Hosts))
		runner.OnHostDone = hs.HostDone
		hs.Start()
		defer hs.Stop()
	}

	results := runner.Run(cmd.Context())
	return Report(cmd.OutOrStdout(), results)
}
