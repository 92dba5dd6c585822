package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dayuer/kira-go/internal/bus"
	"github.com/dayuer/kira-go/internal/config"
	"github.com/dayuer/kira-go/internal/metrics"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the gateway (bridge adapters + agent)",
	RunE:  runGateway,
}

var gatewayPort int

func init() {
	gatewayCmd.Flags().IntVarP(&gatewayPort, "port", "p", 0, "Gateway port (default from config)")
	rootCmd.AddCommand(gatewayCmd)
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if gatewayPort > 0 {
		cfg.Gateway.Port = gatewayPort
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	p, err := buildPipeline(ctx, cfg, bus.NewMessageBus(inboundBufferSize), logger)
	if err != nil {
		return err
	}
	defer p.shutdown()

	metrics.Init()
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port)),
		Handler:           p.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	logger.Info("gateway started", "addr", srv.Addr, "model", cfg.Agent.Model, "adapters", p.channels.EnabledChannels())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-srvErr:
				if ok {
					logger.Error("http server failed", "error", err)
					cancel()
				}
				return
			case sig := <-sigCh:
				if sig == syscall.SIGHUP {
					reloadGateway(p, logger)
					continue
				}
				logger.Info("shutting down", "signal", sig.String())
				cancel()
				return
			}
		}
	}()

	runErr := p.run(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	return runErr
}

// reloadGateway re-reads the config file and hot-swaps the chat model.
// Adapters and pacing keep their startup values.
func reloadGateway(p *pipeline, logger *slog.Logger) {
	logger.Info("SIGHUP received, reloading config")
	cfg, err := config.LoadViper(settings, configPath())
	if err != nil {
		logger.Error("reload failed", "error", err)
		return
	}
	p.reload(cfg)
}

// routes serves the WebSocket bridges, the metrics endpoint and a health check.
func (p *pipeline) routes() http.Handler {
	mux := http.NewServeMux()
	for _, ws := range p.websocket {
		mux.Handle(ws.Path(), ws)
	}
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "ok")
	})
	return mux
}
