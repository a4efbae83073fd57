package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/difflog/internal/app"
	"github.com/JakeFAU/difflog/internal/ingest"
)

const (
	shutdownTimeout = 10 * time.Second
	// drainTimeout bounds the wait for a reader blocked on its input.
	drainTimeout = time.Second
)

// registerer receives the publisher and sink collectors served on /metrics.
var registerer prometheus.Registerer = prometheus.DefaultRegisterer

// newPublishCmd creates the 'publish' subcommand, which turns a structured
// build log into a stream of diff frames.
func newPublishCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publishes progress frames for a structured build log",
		Long: `Reads "@nix {json}" event lines (stdin by default), maintains the build
progress state, and sends a baseline followed by JSON-patch frames to every
configured sink. Runs until the input ends or the process is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPublish(cmd, input)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", `event log to read ("-" for stdin)`)
	return cmd
}

func runPublish(cmd *cobra.Command, input string) (err error) {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}

	src, err := openInput(cmd, input)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, rt.cfg, rt.logger, app.Options{Registerer: registerer, Stdout: cmd.OutOrStdout()})
	if err != nil {
		return fmt.Errorf("init sinks: %w", err)
	}
	logger := a.Logger()

	// Sinks outlive ctx so the final flush still reaches them after a signal.
	pub := a.NewPublisher(context.WithoutCancel(ctx))

	srv := startServer(a, rt.cfg.Server.Enabled, rt.cfg.Server.Port, stop)

	// The gate stops the reader from mutating the publisher once shutdown
	// begins, so no update lands on sinks that are already closed.
	gate := ingest.NewGate(pub)
	reader := ingest.NewReader(gate, logger.Named("ingest"))
	done := make(chan error, 1)
	go func() {
		_, runErr := reader.Run(ctx, src)
		done <- runErr
	}()

	var stats *ingest.Stats
	finish := func(runErr error) {
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			err = fmt.Errorf("ingest: %w", runErr)
		}
		s := reader.Stats()
		stats = &s
	}
	select {
	case runErr := <-done:
		finish(runErr)
	case <-ctx.Done():
		logger.Info("shutdown initiated")
		_ = src.Close()
		select {
		case runErr := <-done:
			finish(runErr)
		case <-time.After(drainTimeout):
			logger.Warn("input still blocked, abandoning reader")
		}
	}
	gate.Close()
	if n := gate.Dropped(); n > 0 {
		logger.Warn("events arrived after shutdown", zap.Int("dropped", n))
	}

	if stopErr := pub.Stop(); stopErr != nil {
		logger.Error("publisher stop failed", zap.Error(stopErr))
		err = multierr.Append(err, stopErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if srv != nil {
		if shutErr := srv.Shutdown(shutdownCtx); shutErr != nil {
			logger.Error("server shutdown error", zap.Error(shutErr))
		}
	}
	if closeErr := a.Close(shutdownCtx); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("close sinks: %w", closeErr))
	}

	fields := []zap.Field{zap.Int("frames", a.Replica().Frames())}
	if stats != nil {
		fields = append(fields,
			zap.Int("lines", stats.Lines),
			zap.Int("messages", stats.Messages+stats.Plain),
			zap.Int("activities", stats.Started),
			zap.Int("malformed", stats.Malformed),
			zap.Int("sink_errors", stats.SinkErrors),
		)
	}
	if uri := a.ArchiveURI(); uri != "" {
		fields = append(fields, zap.String("archive", uri), zap.String("archive_digest", a.ArchiveDigest()))
	}
	logger.Info("publish finished", fields...)
	return err
}

func openInput(cmd *cobra.Command, input string) (io.ReadCloser, error) {
	if input == "" || input == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// startServer serves the HTTP API in the background. A listen failure cancels
// the publish run through stop.
func startServer(a *app.App, enabled bool, port int, stop context.CancelFunc) *http.Server {
	if !enabled {
		return nil
	}
	logger := a.Logger()
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           a.Server().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()
	return srv
}
