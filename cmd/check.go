package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
)

// ErrBrokenLinks is returned by check --fail-on-broken when the page has broken links.
var ErrBrokenLinks = errors.New("broken links found")

type checkOptions struct {
	includeExternal bool
	timeout         time.Duration
	failOnBroken    bool
}

func newCheckCmd() *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check <url>",
		Short: "Analyzes one page and prints the result as JSON",
		Long: `Runs a single analysis synchronously. The report is written to stdout;
logs go to stderr. A failed analysis prints the job record and exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.includeExternal, "include-external", true, "also verify links to other hosts")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "page fetch timeout (default from configuration)")
	cmd.Flags().BoolVar(&opts.failOnBroken, "fail-on-broken", false, "exit non-zero when any broken link is found")
	return cmd
}

func runCheck(cmd *cobra.Command, target string, opts *checkOptions) error {
	rt, err := sessionFrom(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := newApp(ctx, rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rt.cfg.Server.ShutdownTimeout())
		defer cancel()
		if cerr := app.Close(closeCtx); cerr != nil {
			rt.logger.Warn("close application", zap.Error(cerr))
		}
	}()

	job, result, err := app.Analyze(ctx, linkcheck.JobParameters{
		TargetURL:       target,
		IncludeExternal: opts.includeExternal,
		PageTimeout:     opts.timeout,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if result == nil {
		if err := enc.Encode(job); err != nil {
			return fmt.Errorf("write job: %w", err)
		}
		return fmt.Errorf("analysis %s %s: %s", job.ID, job.Status, job.Error)
	}
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if opts.failOnBroken && result.Summary.BrokenLinks > 0 {
		return fmt.Errorf("%w: %d of %d", ErrBrokenLinks, result.Summary.BrokenLinks, result.Summary.TotalLinks)
	}
	return nil
}
