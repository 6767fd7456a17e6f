// Package cmd defines the linkanalyzer command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/broken-link-analyzer/internal/config"
	"github.com/JakeFAU/broken-link-analyzer/internal/logging"
	"github.com/JakeFAU/broken-link-analyzer/internal/server"
)

const defaultEnvFile = ".env"

type sessionKeyType string

const sessionKey sessionKeyType = "session"

// session is what PersistentPreRunE prepares for every subcommand.
type session struct {
	cfg    config.Config
	logger *zap.Logger
}

// newApp builds the service. Tests replace it to control the wiring.
var newApp = server.Build

type rootOptions struct {
	cfgFile  string
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "linkanalyzer",
		Short: "Finds broken links and images on a web page.",
		Long: `linkanalyzer fetches a single page, extracts every hyperlink and image
reference, checks each target and reports the broken ones classified as
internal or external.

Run "linkanalyzer serve" for the HTTP service or "linkanalyzer check <url>"
for a one-shot analysis printed as JSON.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(opts.envFile); err != nil {
				return err
			}
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger, err := logging.NewAtLevel(cfg.Logging.Development, opts.logLevel)
			if err != nil {
				return err
			}
			ctx := context.WithValue(cmd.Context(), sessionKey, &session{cfg: cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML); environment variables use the LINKCHECK_ prefix")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file loaded before configuration; empty disables")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "minimum log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCheckCmd())
	return cmd
}

// loadEnvFile applies a dotenv file. The default file is optional; an
// explicitly named one must exist.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if path == defaultEnvFile && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

func sessionFrom(ctx context.Context) (*session, error) {
	rt, ok := ctx.Value(sessionKey).(*session)
	if !ok || rt == nil {
		return nil, errors.New("command session not initialized")
	}
	return rt, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
