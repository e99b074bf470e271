package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/fcchat/internal/config"
	"github.com/omochice/fcchat/pkg/client"
	"github.com/omochice/fcchat/pkg/model"
)

func newRunCmd(root *rootFlags) *cobra.Command {
	var (
		connections int
		listen      string
		capture     string
		endpoint    string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the chat servers and log model state changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("connections") {
				cfg.Connections = connections
			}
			if flags.Changed("listen") {
				cfg.Listen = listen
			}
			if flags.Changed("capture") {
				cfg.Capture = capture
			}
			if flags.Changed("endpoint") {
				cfg.Endpoint = endpoint
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cfg, logger)
		},
	}
	cmd.Flags().IntVarP(&connections, "connections", "n", 1, "number of concurrent connections")
	cmd.Flags().StringVar(&listen, "listen", "", "serve /metrics and /models on this address")
	cmd.Flags().StringVar(&capture, "capture", "", "record received packets to this file")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "chat server to use instead of the server directory")
	return cmd
}

func runWatch(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	opts, err := cfg.ClientOptions()
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts.Metrics = client.NewMetrics(promReg)
	opts.Registry = model.NewRegistry(logger)

	var captureFile io.WriteCloser
	if cfg.Capture != "" {
		f, err := os.Create(cfg.Capture)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		captureFile = f
		defer captureFile.Close()
	}

	stopLog := logStateChanges(opts.Registry, logger)
	defer stopLog()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           newRouter(opts.Registry, promReg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving http", "addr", cfg.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	for i := range cfg.Connections {
		o := opts
		o.Logger = logger.With("conn", i)
		// Only the first connection records.
		if i == 0 && captureFile != nil {
			o.Capture = captureFile
		}
		g.Go(func() error {
			return watch(gctx, client.New(o), o.Logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func watch(ctx context.Context, c *client.Client, logger *slog.Logger) error {
	if err := c.ConnectAndWaitForModels(ctx); err != nil {
		if ctx.Err() != nil {
			_ = c.Disconnect(context.Background())
			return nil
		}
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	logger.Info("model list loaded", "models", c.Registry().Len(), "user", c.Username())
	<-ctx.Done()
	return c.Disconnect(context.Background())
}

// logStateChanges logs every video state transition in reg.
func logStateChanges(reg *model.Registry, logger *slog.Logger) func() {
	return reg.OnChange(func(s model.Snapshot, c model.Change) {
		if c.Field != "vs" {
			return
		}
		logger.Info("video state changed",
			"uid", s.UID,
			"model", s.Name,
			"state", s.VideoState().String(),
		)
	})
}
