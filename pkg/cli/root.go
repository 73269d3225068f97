// Package cli wires the harness core into a cobra command tree.
package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/drover-sh/drover/internal/config"
	"github.com/drover-sh/drover/internal/conn"
	"github.com/drover-sh/drover/internal/host"
	"github.com/drover-sh/drover/internal/output"
)

var (
	cfgPath   string
	hostNames []string
	dryRun    bool
	askPass   bool
)

var rootCmd = &cobra.Command{
	Use:           "drover",
	Short:         "Run commands and sync files on test-harness hosts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ~/.config/drover/config.yaml)")
	rootCmd.PersistentFlags().StringSliceVarP(&hostNames, "host", "H", nil, "target host name from the inventory (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "echo what would run without touching any host")
	rootCmd.PersistentFlags().BoolVar(&askPass, "ask-pass", false, "prompt for a password when key auth fails")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(waitPortCmd)
}

// Execute runs the root command.
func Execute() error {
	defer conn.CloseAgent()
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	return config.LoadDefault()
}

func resolveHosts(cfg *config.Config) ([]*host.Host, error) {
	if len(hostNames) == 0 {
		return nil, fmt.Errorf("no hosts specified: use --host")
	}
	hosts := make([]*host.Host, 0, len(hostNames))
	for _, name := range hostNames {
		h, err := cfg.HostByName(name)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

func dialOptions() conn.DialOptions {
	opts := conn.DialOptions{}
	if askPass {
		opts.PasswordCallback = promptPassword
	}
	return opts
}

func promptPassword(hostname string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s password: ", hostname)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func newOutput() *output.Output {
	out := output.New(os.Stdout)
	out.Color = term.IsTerminal(int(os.Stdout.Fd()))
	return out
}
