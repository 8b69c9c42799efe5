package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/services/device"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/services/gateway/app"
	controller "github.com/LeonardoBeccarini/zone_irrigation/internal/services/irrigation-controller"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/services/persistence"
	"github.com/LeonardoBeccarini/zone_irrigation/pkg/broker"
	"github.com/LeonardoBeccarini/zone_irrigation/pkg/dedup"
)

func buildStrategy(cfg Config, logger *slog.Logger) controller.Strategy {
	if cfg.Strategy != "classifier" {
		return controller.NewHysteresisStrategy(logger)
	}
	var model controller.Classifier
	if cfg.ModelPath != "" {
		m, err := controller.LoadLogisticModel(cfg.ModelPath)
		if err != nil {
			logger.Warn("main: model not loaded, using fallback scorer", "path", cfg.ModelPath, "err", err)
		} else {
			model = m
		}
	}
	s := controller.NewClassifierStrategy(model, cfg.PumpThreshold, logger)
	logger.Info("main: classifier strategy", "model", s.ModelInfo(), "threshold", cfg.PumpThreshold)
	return s
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// MQTT
	hooks := &broker.ConnectHooks{}
	cfg.Broker.Logger = logger
	cfg.Broker.Hooks = hooks
	client, err := broker.NewConn(ctx, &cfg.Broker)
	if err != nil {
		logger.Error("main: MQTT connect failed", "addr", cfg.Broker.Addr(), "err", err)
		os.Exit(1)
	}
	defer broker.Close(client)

	httpLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HTTPPort))
	if err != nil {
		logger.Error("main: HTTP listen failed", "port", cfg.HTTPPort, "err", err)
		os.Exit(1)
	}
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		logger.Error("main: gRPC listen failed", "port", cfg.GRPCPort, "err", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger, client, hooks, httpLis, grpcLis); err != nil {
		logger.Error("main: exiting", "err", err)
		os.Exit(1)
	}
}

// run wires the engine to the broker client and serves HTTP and gRPC on the
// given listeners until ctx is cancelled or a server fails.
func run(ctx context.Context, cfg Config, logger *slog.Logger, client mqtt.Client, hooks *broker.ConnectHooks,
	httpLis, grpcLis net.Listener) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	consumer := broker.NewConsumer(client, nil, logger, cfg.TelemetryTopic)
	if hooks != nil {
		hooks.Add(consumer.OnConnect)
	}
	publisher := broker.NewPublisher(client, cfg.PublishTimeout, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Influx sink (opzionale)
	var (
		sink       controller.Sink
		history    app.HistorySource
		sinkStatus app.SinkStatus
	)
	if cfg.Influx.Enabled() {
		svc, err := persistence.NewService(cfg.Influx, logger)
		if err != nil {
			return fmt.Errorf("influx init: %w", err)
		}
		defer svc.Close()
		sink, history, sinkStatus = svc, svc, svc
		logger.Info("main: influx sink enabled", "url", cfg.Influx.URL, "bucket", cfg.Influx.Bucket)
	} else {
		logger.Info("main: influx sink disabled (INFLUX_TOKEN not set)")
	}

	var deduper *dedup.Deduper
	if cfg.DedupTTL > 0 {
		deduper = dedup.New(cfg.DedupTTL, cfg.DedupMax)
	}

	ctrl, err := controller.NewController(consumer, controller.Options{
		DefaultZone:     cfg.DefaultZone,
		HistoryCapacity: cfg.HistoryCapacity,
		Params: entities.ControlParams{
			OnThreshold:  cfg.OnThreshold,
			OffThreshold: cfg.OffThreshold,
			AutoEnabled:  cfg.AutoEnabled,
			DefaultMode:  entities.ModeFor(cfg.AutoEnabled),
		},
		Strategy:  buildStrategy(cfg, logger),
		Publisher: publisher,
		Dispatch: controller.DispatcherConfig{
			CmdTopicTemplate: cfg.CmdTopicTemplate,
			CfgTopicTemplate: cfg.CfgTopicTemplate,
			BreakerTimeout:   cfg.BreakerTimeout,
		},
		Sink:       sink,
		Deduper:    deduper,
		Registerer: reg,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("controller init: %w", err)
	}
	go ctrl.Start(ctx)

	// HTTP gateway
	gw := app.NewGateway(ctrl, app.Config{
		DefaultZone: cfg.DefaultZone,
		BrokerAddr:  cfg.Broker.Addr(),
		Broker:      client,
		History:     history,
		Sink:        sinkStatus,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:      logger,
	})
	httpSrv := &http.Server{
		Handler:           gw.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 2)
	go func() {
		logger.Info("main: HTTP listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("HTTP server: %w", err)
			stop()
		}
	}()

	// gRPC DeviceService
	dev := device.NewGrpcHandler(ctrl, logger)
	dev.SetMaxDuration(cfg.MaxIrrigation)
	grpcServer := grpc.NewServer()
	device.RegisterDeviceServiceServer(grpcServer, dev)
	go func() {
		logger.Info("main: gRPC listening", "addr", grpcLis.Addr().String())
		if err := grpcServer.Serve(grpcLis); err != nil {
			errc <- fmt.Errorf("gRPC server: %w", err)
			stop()
		}
	}()

	logger.Info("main: zone irrigation running",
		"sub", cfg.TelemetryTopic, "cmd", cfg.CmdTopicTemplate, "strategy", cfg.Strategy,
		"thirst_on", cfg.OnThreshold, "thirst_off", cfg.OffThreshold)

	// graceful shutdown
	<-ctx.Done()
	logger.Info("main: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("main: HTTP shutdown", "err", err)
	}
	dev.Close()
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		// watch stream ancora aperti
		grpcServer.Stop()
	}

	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}
