package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tilecensus.ai/internal/transport/observer"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve POST /v1/census, GET /v1/census/latest and the /v1/ws report stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := newLogger("server")
		addr := strings.TrimSpace(serveAddr)
		if addr == "" {
			addr = cfg.HTTP.Addr
		}

		idx, err := openIndex(cfg)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		var hist observer.History
		if idx != nil {
			hist = idx
		}
		obs := observer.NewServer(hist, logger)
		rt, err := buildRuntime(cfg, sourceFor(cfg), newLogger("census"), idx, obs)
		if err != nil {
			return err
		}
		defer rt.Close()

		srv := &http.Server{
			Addr:              addr,
			Handler:           obs.Handler(rt.runner),
			ReadHeaderTimeout: 5 * time.Second,
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Printf("listening on %s", ln.Addr())
		return serveUntil(ctx, srv, ln, 5*time.Second)
	},
}

// serveUntil serves on ln until ctx is done, then shuts down and returns only
// after in-flight handlers finish or grace expires. Sinks are closed by the
// caller afterwards, so no handler may still be feeding them.
func serveUntil(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutCtx, cancelShut := context.WithTimeout(context.Background(), grace)
		defer cancelShut()
		_ = srv.Shutdown(shutCtx)
	}()

	err := srv.Serve(ln)
	cancel()
	<-done
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "http listen address (overrides http.addr)")
}
