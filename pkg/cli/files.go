package cli

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/conn"
	"github.com/drover-sh/drover/internal/transfer"
	"github.com/drover-sh/drover/internal/waiter"
)

var ignorePatterns []string

var uploadCmd = &cobra.Command{
	Use:   "upload <source> <target>",
	Short: "Copy a file or directory to the selected hosts over SFTP",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eachHostTransfer(cmd, func(t *transfer.Transfer) error {
			res, err := t.ScpTo(cmd.Context(), args[0], args[1], transfer.Options{
				Ignore: ignorePatterns,
				DryRun: dryRun,
			})
			if err != nil {
				return err
			}
			t.Out.Infof("%s", res)
			return nil
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <source> <target>",
	Short: "Copy a file or directory from the selected hosts",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		multi := len(hostNames) > 1
		return eachHostTransfer(cmd, func(t *transfer.Transfer) error {
			target := args[1]
			if multi {
				// Keep per-host results apart.
				target = filepath.Join(target, t.Host.Name)
			}
			res, err := t.ScpFrom(cmd.Context(), args[0], target, transfer.Options{DryRun: dryRun})
			if err != nil {
				return err
			}
			t.Out.Infof("%s", res)
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync <source> <target>",
	Short: "Synchronize a file or directory to the selected hosts with rsync",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eachHostTransfer(cmd, func(t *transfer.Transfer) error {
			res, err := t.RsyncTo(cmd.Context(), args[0], args[1], transfer.Options{
				Ignore: ignorePatterns,
				DryRun: dryRun,
			})
			if err != nil {
				return err
			}
			t.Out.Infof("%s", res)
			return nil
		})
	},
}

var waitAttempts int

var waitPortCmd = &cobra.Command{
	Use:   "wait-port <port>",
	Short: "Wait for a TCP port to open on the selected hosts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		hosts, err := resolveHosts(cfg)
		if err != nil {
			return err
		}

		out := newOutput()
		for _, h := range hosts {
			if !waiter.New(h, out).WaitForPort(port, waitAttempts) {
				return fmt.Errorf("port %d never opened on %s", port, h.Hostname())
			}
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringSliceVar(&ignorePatterns, "ignore", nil, "path segments to exclude (repeatable)")
	syncCmd.Flags().StringSliceVar(&ignorePatterns, "ignore", nil, "path segments to exclude (repeatable)")
	waitPortCmd.Flags().IntVar(&waitAttempts, "attempts", waiter.DefaultAttempts, "probe attempts before giving up")
}

// eachHostTransfer runs fn against a Transfer for every selected host,
// reporting the first failure.
func eachHostTransfer(cmd *cobra.Command, fn func(t *transfer.Transfer) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	hosts, err := resolveHosts(cfg)
	if err != nil {
		return err
	}

	out := newOutput()
	for _, h := range hosts {
		mgr := conn.NewManager(h, dialOptions())
		t := transfer.New(h, mgr, out)
		t.DryRun = dryRun || cfg.Defaults.DryRun
		err := fn(t)
		mgr.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", h.Hostname(), err)
		}
	}
	return nil
}
