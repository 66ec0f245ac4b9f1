package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(rt *runtime) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the client over a local HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := server.NewServer(server.Config{
				ListenAddr: addr,
				App:        rt.app,
				Logger:     rt.app.Logger.With(logging.Field{Key: "component", Value: "server"}),
			})
			if err != nil {
				return err
			}
			defer srv.Close()

			httpSrv := srv.HTTPServer()
			errCh := make(chan error, 1)
			go func() {
				errCh <- httpSrv.ListenAndServe()
			}()
			rt.app.Logger.Info("listening", logging.Field{Key: "addr", Value: httpSrv.Addr})
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", httpSrv.Addr)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides config)")
	return cmd
}
