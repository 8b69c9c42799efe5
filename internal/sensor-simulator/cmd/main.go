// cmd/sensor-sim/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	sensorSimulator "github.com/LeonardoBeccarini/zone_irrigation/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/zone_irrigation/pkg/broker"
)

func main() {
	// define flags
	zoneID := flag.StringP("zone", "z", "area-tn-001", "zone (area) identifier")
	host := flag.String("host", "localhost", "MQTT broker host")
	port := flag.Int("port", 1883, "MQTT broker port")
	user := flag.String("user", "", "MQTT user")
	pass := flag.String("password", "", "MQTT password")
	clientID := flag.String("client-id", "", "MQTT client ID (default sim-<zone>)")
	interval := flag.Duration("interval", 2*time.Second, "initial publish interval (clamped to 500ms..10s)")
	decay := flag.Float64("decay", 0.1, "moisture lost per simulated minute with the pump off")
	timeScale := flag.Float64("time-scale", 60, "simulated minutes per real minute")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	lat := flag.Float64("lat", 0, "latitude for the SoilGrids moisture seed (0,0 = skip)")
	lon := flag.Float64("lon", 0, "longitude for the SoilGrids moisture seed")
	verbose := flag.BoolP("verbose", "v", false, "debug logging")
	flag.Parse()

	lvl := slog.LevelInfo
	if *verbose {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	if *clientID == "" {
		*clientID = "sim-" + *zoneID
	}
	hooks := &broker.ConnectHooks{}
	cfg := &broker.Config{
		Host:     *host,
		Port:     *port,
		User:     *user,
		Password: *pass,
		ClientID: *clientID,
		Hooks:    hooks,
		Logger:   logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := broker.NewConn(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer broker.Close(client)

	generator := sensorSimulator.NewDataGenerator(*decay, *timeScale, *seed)
	if *lat != 0 || *lon != 0 {
		if err := generator.SeedFromSoilGrids(ctx, *lat, *lon); err != nil {
			logger.Warn("simulator: soilgrids seed failed, using default", "error", err)
		}
	}

	topics := sensorSimulator.DefaultTopics()
	publisher := broker.NewPublisher(client, 3*time.Second, logger)
	consumer := broker.NewConsumer(client, nil, logger,
		broker.TopicFor(topics.Cmd, *zoneID), broker.TopicFor(topics.Cfg, *zoneID))
	hooks.Add(consumer.OnConnect)
	sim := sensorSimulator.NewSensorSimulator(consumer, publisher, generator, *zoneID, topics, *interval, logger)

	logger.Info("simulator: running", "zone", *zoneID, "broker", cfg.Addr(), "moist", generator.Moisture())
	sim.Start(ctx)
}
