package transfer

import (
	"context"
	"fmt"

	"github.com/bacalhau-project/shellwright/cmd/common"
	"github.com/bacalhau-project/shellwright/pkg/sshutils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Direction says which side of the transfer is remote.
type Direction string

const (
	Download Direction = "get"
	Upload   Direction = "put"
)

// TransferConfig describes one file copy to or from a single host
type TransferConfig struct {
	Host      string
	Source    string
	Target    string
	Direction Direction
	Quiet     bool
}

func (c *TransferConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required: use --host or ssh.host")
	}
	if c.Source == "" || c.Target == "" {
		return fmt.Errorf("source and target paths are required")
	}
	switch c.Direction {
	case Download, Upload:
	default:
		return fmt.Errorf("unknown transfer direction %q", c.Direction)
	}
	return nil
}

func (c *TransferConfig) description() string {
	if c.Direction == Download {
		return fmt.Sprintf("%s:%s", c.Host, c.Source)
	}
	return fmt.Sprintf("%s -> %s", c.Source, c.Host)
}

// Transfer copies the file with session and turns a failed transfer into an error.
// The details of the failure are in the session log.
func Transfer(ctx context.Context, session *sshutils.Session, config *TransferConfig) error {
	defer session.Close()

	var ok bool
	switch config.Direction {
	case Download:
		ok = session.GetFile(ctx, config.Source, config.Target)
	case Upload:
		ok = session.PutFile(ctx, config.Source, config.Target)
	}
	if !ok {
		return fmt.Errorf("%s %s failed", config.Direction, config.Source)
	}
	return nil
}

func newTransferCmd(direction Direction, use, short, long string) *cobra.Command {
	config := &TransferConfig{Direction: direction}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return common.BindConnectionFlags(viper.GetViper(), cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Source, config.Target = args[0], args[1]
			return runTransfer(cmd, config)
		},
	}

	cmd.Flags().StringVarP(&config.Host, "host", "H", "", "target host (default: ssh.host from config)")
	cmd.Flags().BoolVarP(&config.Quiet, "quiet", "q", false, "do not draw a progress bar")
	common.AddConnectionFlags(cmd.Flags())
	return cmd
}

func GetGetCmd() *cobra.Command {
	return newTransferCmd(Download,
		"get [flags] REMOTE_PATH LOCAL_PATH",
		"Download a file over SFTP",
		`Log in with a password and download REMOTE_PATH to LOCAL_PATH over SFTP.
No interactive shell is opened.`)
}

func GetPutCmd() *cobra.Command {
	return newTransferCmd(Upload,
		"put [flags] LOCAL_PATH REMOTE_PATH",
		"Upload a file over SFTP",
		`Log in with a password and upload LOCAL_PATH to REMOTE_PATH over SFTP.
No interactive shell is opened.`)
}

func runTransfer(cmd *cobra.Command, config *TransferConfig) error {
	cfg, err := common.LoadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if config.Host == "" {
		config.Host = cfg.SSH.Host
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	password, err := common.ResolvePassword(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var progress sshutils.ProgressFunc = discardProgress
	if !config.Quiet {
		progress = newProgressBar(cmd.ErrOrStderr(), config.description()).Report
	}

	session, err := common.NewSession(cfg, config.Host, password, sshutils.WithProgress(progress))
	if err != nil {
		return err
	}
	return Transfer(cmd.Context(), session, config)
}
