package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/drover-sh/drover/internal/command"
	"github.com/drover-sh/drover/internal/config"
	"github.com/drover-sh/drover/internal/conn"
	"github.com/drover-sh/drover/internal/host"
)

var (
	runAcceptAll   bool
	runCodes       []int
	runSilent      bool
	runExpectDrop  bool
	runResetConn   bool
	runTraceLimit  int
	runConcurrency int
)

var runCmd = &cobra.Command{
	Use:   "run <command>",
	Short: "Run a shell command on the selected hosts",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runAcceptAll, "accept-all", false, "treat every exit code as success")
	runCmd.Flags().IntSliceVar(&runCodes, "codes", nil, "acceptable exit codes (default 0)")
	runCmd.Flags().BoolVar(&runSilent, "silent", false, "suppress output and skip exit-code evaluation")
	runCmd.Flags().BoolVar(&runExpectDrop, "expect-disconnect", false, "expect the command to break the connection")
	runCmd.Flags().BoolVar(&runResetConn, "reset-connection", false, "close the connection after the command")
	runCmd.Flags().IntVar(&runTraceLimit, "trace-limit", 0, "trailing output lines in failure messages")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "max hosts driven in parallel")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	hosts, err := resolveHosts(cfg)
	if err != nil {
		return err
	}

	out := newOutput()
	opts := command.Options{
		DryRun:                  dryRun || cfg.Defaults.DryRun,
		Silent:                  runSilent,
		AcceptAllExitCodes:      runAcceptAll,
		ExpectConnectionFailure: runExpectDrop,
		ResetConnection:         runResetConn,
		TraceLimit:              runTraceLimit,
	}
	if cmd.Flags().Changed("codes") {
		opts.AcceptableExitCodes = runCodes
	}

	concurrency := runConcurrency
	if concurrency == 0 {
		concurrency = cfg.Defaults.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	errs := make([]error, len(hosts))
	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i, h := range hosts {
		g.Go(func() error {
			errs[i] = runOnHost(cmd.Context(), cfg, h, args[0], opts)
			return nil
		})
	}
	g.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			out.Errorf("%s: %v", hosts[i].Hostname(), err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d host(s) failed", failed, len(hosts))
	}
	return nil
}

func runOnHost(ctx context.Context, cfg *config.Config, h *host.Host, cmdline string, opts command.Options) error {
	mgr := conn.NewManager(h, dialOptions())
	defer mgr.Close()

	ex := command.NewExecutor(h, mgr, newOutput())
	if cfg.Defaults.TraceLimit > 0 {
		ex.TraceLimit = cfg.Defaults.TraceLimit
	}

	if d := cfg.Defaults.Timeout.Duration; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	_, err := ex.Exec(ctx, command.Shell(cmdline), opts)
	return err
}
