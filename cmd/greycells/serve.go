package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhuang-keju/GreyCells/internal/run"
	"github.com/zhuang-keju/GreyCells/internal/web"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the run history web UI",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, repoRoot, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			if _, err := run.ReconcileStale(cmd.Context(), store, filepath.Join(repoRoot, stateDirName)); err != nil {
				return err
			}

			server, err := web.NewServer(store)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{Addr: addr, Handler: server.Routes()}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			fmt.Printf("serving run history on http://localhost%s\n", addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8787", "listen address")
	return cmd
}
