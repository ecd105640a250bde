// Command import loads the recipe catalog files into PostgreSQL.
//
//	import [flags]          run the four-stage import
//	import reset --yes      truncate the catalog tables
//	import history          list recorded stages
//	import schema           print the catalog DDL
//
// Settings come from the environment (and a .env file); flags override the
// import section. The exit status is 1 on fatal errors only: row problems are
// reported and counted but do not fail the run.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/korhy/cookbook/internal/config"
	"github.com/korhy/cookbook/internal/core"
	"github.com/korhy/cookbook/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		}
		stop()
		os.Exit(1)
	}
}

// app is the state shared by every subcommand once PersistentPreRunE ran.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var flags importFlags

	root := &cobra.Command{
		Use:           "import",
		Short:         "Import the recipe catalog from delimited files",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd, &a.cfg.Import); err != nil {
				return err
			}
			return a.runImport(cmd, flags)
		},
	}

	flags.register(root)
	root.AddCommand(
		newResetCmd(a),
		newHistoryCmd(a),
		newSchemaCmd(),
	)
	return root
}

// setup loads .env, the configuration and the logger. Logs go to stderr so
// stdout carries only the report.
func (a *app) setup(cmd *cobra.Command) error {
	envLoaded := godotenv.Overload() == nil

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())

	a.logger.Debug("configuration loaded", "env_file", envLoaded, "config", cfg.String())
	return nil
}
