package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/firmscope/core/cmd/api/middleware"
	"github.com/firmscope/core/internal/config"
	"github.com/firmscope/core/internal/handlers"
	"github.com/firmscope/core/internal/observability"
	"github.com/firmscope/core/internal/session"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, observability.GetLogger())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// newRouter mounts the API and wraps it with the configured middleware.
func newRouter(cfg config.ServerConfig, api *handlers.API, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	api.Register(mux)

	var handler http.Handler = mux
	if cfg.RateLimit.Enabled {
		limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
		handler = middleware.RateLimit(limiter)(handler)
	}
	handler = middleware.Cors(cfg.CORSOrigin)(handler)
	return middleware.Logging(logger.Named("http"))(handler)
}

func newAPI(cfg *config.Config, logger *zap.Logger) (*handlers.API, *session.Session, error) {
	params, err := cfg.GraphParams()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load pipeline parameters: %w", err)
	}
	sess := session.New(params, cfg.SelectionOptions(), logger)
	api := handlers.NewAPI(sess, params, handlers.Options{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		BuildTimeout: cfg.Pipeline.BuildTimeout,
	}, logger)
	return api, sess, nil
}

// serve runs the API until ctx is cancelled, then drains open requests.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	api, sess, err := newAPI(cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newRouter(cfg.Server, api, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("Server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
