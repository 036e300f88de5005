package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"enginectl/internal/httpapi"
)

const shutdownTimeout = 5 * time.Second

func serveCmd(cfg *Config) *cobra.Command {
	var (
		addr        string
		corsEnabled bool
		corsOrigins string
	)
	cmd := &cobra.Command{Use: "serve", Short: "Serve the HTTP API", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		a, fc, err := cfg.newApp(nil)
		if err != nil {
			return err
		}
		if addr == "" {
			addr = fc.Addr
		}
		origins := fc.CORSOrigins
		if corsOrigins != "" {
			origins = splitCSV(corsOrigins)
		}
		httpapi.SetLogger(a.Log)
		httpapi.SetCORSOptions(corsEnabled || fc.CORSEnabled, origins, nil, nil)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		httpapi.SetBaseContext(ctx)

		srv := &http.Server{
			Addr:              addr,
			Handler:           httpapi.NewMux(a),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			a.Log.Info().Str("addr", addr).Str("data_dir", a.Record().DataFolderPath).Msg("enginectl listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		// cancel background installs and downloads, then drain requests
		cancel()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			a.Log.Warn().Err(err).Msg("graceful shutdown error")
		}
		return nil
	}}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", envStr("ENGINECTL_ADDR", ""), "HTTP listen address, e.g. :8080 (defaults ENGINECTL_ADDR or config)")
	f.BoolVar(&corsEnabled, "cors", envBool("ENGINECTL_CORS", false), "Enable CORS")
	f.StringVar(&corsOrigins, "cors-origins", envStr("ENGINECTL_CORS_ORIGINS", ""), "Comma separated allowed origins")
	return cmd
}
