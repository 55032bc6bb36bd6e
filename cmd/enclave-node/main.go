package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/tee-enclave-node/cmd/flags"
	"github.com/ruteri/tee-enclave-node/common"
	"github.com/ruteri/tee-enclave-node/config"
	"github.com/ruteri/tee-enclave-node/enclave"
	"github.com/ruteri/tee-enclave-node/host"
	"github.com/ruteri/tee-enclave-node/httpserver"
	"github.com/ruteri/tee-enclave-node/metrics"
	"github.com/ruteri/tee-enclave-node/node"
	"github.com/ruteri/tee-enclave-node/storage"
	"github.com/urfave/cli/v2"
)

var (
	flagConfig = &cli.StringFlag{
		Name:     "config",
		Required: true,
		Usage:    "path to the node configuration file (YAML or JSON)",
	}
	flagRecover = &cli.BoolFlag{
		Name:  "recover",
		Value: false,
		Usage: "recover the node from sealed state instead of starting fresh",
	}
	flagTickInterval = &cli.DurationFlag{
		Name:  "tick-interval",
		Value: host.DefaultTickInterval,
		Usage: "how often host time is forwarded to the enclave",
	}
	flagCertBufferSize = &cli.IntFlag{
		Name:  "cert-buffer-size",
		Value: host.DefaultCertBufferSize,
		Usage: "bytes offered to the enclave for the node certificate",
	}
	flagQuoteBufferSize = &cli.IntFlag{
		Name:  "quote-buffer-size",
		Value: host.DefaultQuoteBufferSize,
		Usage: "bytes offered to the enclave for the attestation quote",
	}
	flagListenAddr = &cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for the admin API",
	}
)

func main() {
	app := &cli.App{
		Name:  "enclave-node",
		Usage: "Create, run and tick an enclave node",
		Flags: append([]cli.Flag{
			flagConfig,
			flagRecover,
			flagTickInterval,
			flagCertBufferSize,
			flagQuoteBufferSize,
			flagListenAddr,
		}, flags.CommonFlags...),
		Action: runNode,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runNode(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	nodeCfg, err := config.LoadNodeConfig(cCtx.String(flagConfig.Name))
	if err != nil {
		logger.Error("Failed to load node config", "err", err)
		return err
	}

	if nodeCfg.Debug.MemoryReserveStartup > 0 && !enclave.DebugReserveEnabled {
		logger.Warn("debug.memory_reserve_startup is ignored by this build")
	}

	metricsSrv, err := metrics.New(common.PackageName, cCtx.String(flags.MetricsAddrFlag.Name))
	if err != nil {
		logger.Error("Failed to create metrics server", "err", err)
		return err
	}
	nodeMetrics, err := metrics.NewNodeMetrics(common.PackageName, metricsSrv.Registry())
	if err != nil {
		logger.Error("Failed to register node metrics", "err", err)
		return err
	}

	// The process context is the only one the enclave ever sees
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeFactory := storage.NewStorageBackendFactory(logger)
	e := enclave.New(node.NewFactory(logger, storeFactory), logger)
	defer e.Close()

	driver := host.New(enclave.NewBoundary(ctx, e, logger), host.Config{
		CertBufferSize:  cCtx.Int(flagCertBufferSize.Name),
		QuoteBufferSize: cCtx.Int(flagQuoteBufferSize.Name),
		TickInterval:    cCtx.Duration(flagTickInterval.Name),
		Recover:         cCtx.Bool(flagRecover.Name),
	}, nodeMetrics, logger)

	server, err := httpserver.New(
		flags.ConfigureServer(cCtx, logger, cCtx.String(flagListenAddr.Name)),
		httpserver.NewHandler(driver, nodeCfg.Attestation, logger),
		metricsSrv,
	)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}
	server.RunInBackground()
	defer server.Shutdown()

	if err := driver.Create(nodeCfg); err != nil {
		return err
	}

	if err := driver.Start(ctx); err != nil {
		logger.Error("Failed to start node", "err", err)
		return err
	}

	logger.Info("Node is running, press Ctrl+C to stop")

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case <-driver.Done():
	}

	select {
	case <-driver.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("Node run loop did not stop in time")
	}

	if status := driver.Status(); status.RunFinished && !status.RunOK {
		return errors.New("node run loop failed")
	}
	return nil
}
