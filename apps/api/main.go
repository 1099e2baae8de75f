package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // /debug/pprof
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/wellbeing/apps/api/di"
	echoapi "github.com/trezcool/wellbeing/apps/api/echo"
	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/user"
	appfs "github.com/trezcool/wellbeing/fs"
	logsvc "github.com/trezcool/wellbeing/services/logger"
)

func main() {
	var inmem bool
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Serves the wellbeing HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), inmem)
		},
		SilenceUsage: true,
	}
	cmd.Flags().BoolVar(&inmem, "inmem", false, "use the in-memory store instead of PostgreSQL")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, inmem bool) error {
	conf := core.NewConfig()
	ctx, shutdown := context.WithCancel(ctx)
	defer shutdown()

	c := di.New(conf, inmem, shutdown)
	return c.Invoke(func(
		logger *logsvc.RollbarLogger,
		dbLoggerParam di.DBLoggerParam,
		closeDB di.Closer,
		server echoapi.Server,
	) error {
		// =========================================================================
		// Initialize App

		logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build), map[string]interface{}{"inmem": inmem})
		defer logger.Sync()
		defer logger.Info("Application stopped")

		if err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true); err != nil {
			return errors.Wrap(err, "parsing email templates")
		}
		if err := user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordList); err != nil {
			return errors.Wrap(err, "loading common passwords")
		}

		defer func() {
			if err := closeDB(); err != nil {
				dbLoggerParam.Logger.Error("Failed to close", err)
			}
		}()

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("API listening on " + conf.Server.Address)
			serverErrors <- server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-serverErrors:
			if err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "server error")
			}
			return nil

		case <-ctx.Done():
			logger.Info("Start shutdown...")

			// give outstanding requests a deadline for completion
			sctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			if err := server.Stop(sctx); err != nil {
				return errors.Wrap(err, "could not stop server gracefully")
			}
		}
		return nil
	})
}
