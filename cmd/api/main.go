package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/smlmeter2mqtt/internal/adapter/actor"
	"github.com/berfenger/smlmeter2mqtt/internal/adapter/history"
	"github.com/berfenger/smlmeter2mqtt/internal/adapter/observability"
	"github.com/berfenger/smlmeter2mqtt/internal/config"
	"github.com/berfenger/smlmeter2mqtt/internal/core/actor"
	"github.com/berfenger/smlmeter2mqtt/internal/server"
	"github.com/berfenger/smlmeter2mqtt/internal/util/actorutil"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	defer logger.Sync()

	// metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// meter connector
	connectors := sml.NewConnectorRegistry(logger, metrics.Instrument())
	defer connectors.Close()
	meterProv, err := meterActorProvider(cfg, connectors, metrics, logger)
	if err != nil {
		logger.Error("meter setup failed", zap.Error(err))
		return
	}

	// optional snapshot history
	var historyProv actor.HistoryActorProvider
	if cfg.History.Enabled() {
		store, err := openHistoryStore(cfg, logger)
		if err != nil {
			logger.Error("history setup failed", zap.Error(err))
			return
		}
		defer store.Close()
		historyProv = func(es *eventstream.EventStream) *adactor.HistoryActor {
			return adactor.NewHistoryActor(store, es, logger)
		}
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, meterProv, mqttActorProvider(cfg, logger), historyProv, metrics, logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid, registry)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SMLMETER_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SMLMETER_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("smlmeter")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func meterActorProvider(cfg *config.Config, connectors *sml.ConnectorRegistry, metrics *observability.Metrics, logger *zap.Logger) (actor.MeterActorProvider, error) {

	endpoint := cfg.Meter.Endpoint()
	if _, err := connectors.Get(endpoint); err != nil {
		return nil, err
	}
	deviceIDCode, err := cfg.Meter.DeviceIDCode()
	if err != nil {
		return nil, err
	}

	reader := sml.NewReader(logger, sml.DecodeOptions{
		VerifyMessageCRC: cfg.Meter.VerifyMessageCRC,
	}).WithDeviceIDCode(deviceIDCode)

	return func() *adactor.MeterActor {
		return adactor.NewMeterActor(connectors, endpoint, reader, metrics, cfg.Meter.ReadTimeout(), logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func openHistoryStore(cfg *config.Config, logger *zap.Logger) (*history.Store, error) {
	store, err := history.Open(cfg.History.DSN, cfg.History.Table, logger)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("meter.type", sml.CONNECTOR_TYPE_COMET)
	viper.SetDefault("meter.host", "")
	viper.SetDefault("meter.port", 0)
	viper.SetDefault("meter.serial_device", "")
	viper.SetDefault("meter.baud", 9600)
	viper.SetDefault("meter.read_timeout_millis", 3000)
	viper.SetDefault("meter.verify_message_crc", false)
	viper.SetDefault("meter.device_id_obis", sml.ObisDeviceID.String())
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "smlmeter")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("monitor.poll_interval_millis", 5000)
	viper.SetDefault("history.dsn", "")
	viper.SetDefault("history.table", "meter_snapshots")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	if cfg.History.DSN != "" {
		cfg.History.DSN = "*redacted*"
	}
	slog.Info("Using", "config", cfg)
}
