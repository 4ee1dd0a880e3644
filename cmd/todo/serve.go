package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"davtodo/internal/server"
	"davtodo/internal/storage/sqlite"
	"davtodo/internal/tasksync"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the auto-sync scheduler",
	Long: `Start the HTTP API, the static frontend and the auto-sync scheduler.

Requests are attributed to the user in the X-User-ID header set by an
authenticating proxy. Single-user deployments set --default-user instead.

Example usage:
  todo serve --addr :8080 --db data/todo.db
  TODO_DEFAULT_USER=me todo serve`,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("addr", ":8080", "HTTP listen address")
	flags.String("static", "web/dist", "Directory with built frontend")
	flags.String("default-user", "", "User for requests without an X-User-ID header")

	bindFlag("addr", flags.Lookup("addr"))
	bindFlag("static", flags.Lookup("static"))
	bindFlag("default_user", flags.Lookup("default-user"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger.Info("todo starting", slog.String("version", version))

	store, err := sqlite.Open(appCfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("unable to open database: %w", err)
	}
	defer store.Close()

	syncer := tasksync.New(store, store, logger, tasksync.WithDialer(tasksync.WebDAVDialer(appCfg.WebDAVTimeout)))
	scheduler := tasksync.NewScheduler(syncer, store, logger)

	gin.DefaultWriter = logOut
	gin.DefaultErrorWriter = logOut
	srv := server.New(store, syncer, scheduler, logger, server.Options{
		StaticDir:   appCfg.StaticDir,
		DefaultUser: appCfg.DefaultUser,
	})

	httpServer := &http.Server{
		Addr:              appCfg.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer.RegisterOnShutdown(srv.CloseStreams)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}
