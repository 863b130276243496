package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/nishisan-dev/streampool/internal/audit"
	"github.com/nishisan-dev/streampool/internal/config"
	"github.com/nishisan-dev/streampool/internal/discriminator"
	"github.com/nishisan-dev/streampool/internal/discriminator/httphead"
	"github.com/nishisan-dev/streampool/internal/dispatch"
	"github.com/nishisan-dev/streampool/internal/logging"
	"github.com/nishisan-dev/streampool/internal/maintenance"
	"github.com/nishisan-dev/streampool/internal/observability"
	"github.com/nishisan-dev/streampool/internal/pool"
	"github.com/nishisan-dev/streampool/internal/streamwrapper"
	"github.com/nishisan-dev/streampool/internal/wire"
)

func main() {
	configPath := flag.String("config", "/etc/streamnode/streamnode.yaml", "path to node config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.FilePath)
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("streamnode error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ring := observability.NewEventRing(500)
	counters := &observability.Counters{}

	dispatcher := wire.InboundClientDataSink(dispatch.NewLoggingDispatcher(logger))

	if cfg.Audit.Enabled {
		sink, err := audit.NewS3Sink(ctx, cfg.Audit, logger)
		if err != nil {
			return fmt.Errorf("building audit sink: %w", err)
		}
		sink.Start()
		defer sink.Stop()
		dispatcher = wire.FanoutSink{dispatcher, sink}
	}

	p := pool.New(logger, ring, counters)
	p.Bind(dispatcher, cfg.Pool.MailboxCapacity)
	go p.Run()
	defer p.Close()

	if cfg.Maintenance.Enabled {
		reporter, err := maintenance.New(cfg.Maintenance.StatsIntervalCron, logger, counters, ring)
		if err != nil {
			return fmt.Errorf("building maintenance reporter: %w", err)
		}
		reporter.Start()
		defer reporter.Stop()
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen, err)
	}
	defer ln.Close()
	logger.Info("streamnode listening", "addr", cfg.Listen)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	factories := []discriminator.Factory{httphead.Factory{}}
	_, localPortStr, _ := net.SplitHostPort(ln.Addr().String())
	var originPort *uint16
	if addrPort, err := netip.ParseAddrPort("0.0.0.0:" + localPortStr); err == nil {
		port := addrPort.Port()
		originPort = &port
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logger.Warn("accept failed", "error", err)
				continue
			}
		}
		p.Add(streamwrapper.NewTCP(conn), originPort, factories)
	}
}
