// radiotherm-homie publishes a Radio Thermostat as a Homie v4 device over MQTT.
//
// It polls the thermostat's local HTTP API on a fixed interval, mirrors the
// readings into the controls, status and runtime nodes, and applies writes
// arriving on the settable properties' /set topics.
//
// Configuration is read from $RADIOTHERM_CONFIG, then
// /etc/radio_thermostat/config.yaml, then ./config.yaml.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/radiotherm-homie/internal/api"
	"github.com/nerrad567/radiotherm-homie/internal/bridge"
	"github.com/nerrad567/radiotherm-homie/internal/homie"
	"github.com/nerrad567/radiotherm-homie/internal/infrastructure/config"
	"github.com/nerrad567/radiotherm-homie/internal/infrastructure/logging"
	"github.com/nerrad567/radiotherm-homie/internal/infrastructure/mqtt"
	"github.com/nerrad567/radiotherm-homie/internal/thermostat"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting radiotherm-homie",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, configPath, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Sync() //nolint:errcheck // stdout sync fails on some platforms
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"interval_minutes", cfg.Update.Interval,
	)

	// Locate the thermostat
	host := cfg.Thermostat.Host
	if host == "" {
		log.Info("no thermostat host configured, discovering", "timeout", cfg.GetDiscoveryTimeout().String())
		host, err = thermostat.Discover(ctx, cfg.GetDiscoveryTimeout())
		if err != nil {
			return fmt.Errorf("discovering thermostat: %w", err)
		}
		log.Info("thermostat discovered", "host", host)
	}
	tstat := thermostat.New(host, cfg.GetThermostatTimeout())

	name, err := tstat.Name(ctx)
	if err != nil {
		return fmt.Errorf("reading thermostat name: %w", err)
	}
	deviceID, displayName, err := deviceIdentity(cfg.Homie, name)
	if err != nil {
		return err
	}
	log = log.With("device_id", deviceID)
	log.Info("thermostat connected", "host", tstat.BaseURL(), "name", name)

	// Connect to MQTT with "lost" as the Last Will
	topics := homie.NewTopics(cfg.Homie.BaseTopic)
	mqttClient, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{
		Topic:    topics.State(deviceID),
		Payload:  []byte(homie.StateLost),
		QoS:      byte(cfg.MQTT.QoS),
		Retained: true,
	})
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	device, err := homie.New(homie.Options{
		ID:        deviceID,
		Name:      displayName,
		BaseTopic: cfg.Homie.BaseTopic,
		Client:    &mqttHomieAdapter{client: mqttClient},
		QoS:       mqttClient.QoS(),
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating homie device: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	b, err := bridge.New(bridge.Options{
		Device:     tstat,
		Tree:       device,
		EnumPolicy: bridge.EnumPolicy(cfg.Bridge.EnumPolicy),
		Logger:     log,
		Metrics:    bridge.NewMetrics(registry),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := b.Build(ctx); err != nil {
		return fmt.Errorf("building property tree: %w", err)
	}

	if err := device.Start(); err != nil {
		return fmt.Errorf("starting homie device: %w", err)
	}
	defer func() {
		if stopErr := device.Stop(); stopErr != nil {
			log.Error("error publishing disconnected state", "error", stopErr)
		}
	}()

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		if err := device.Republish(); err != nil {
			log.Warn("failed to republish ready state", "error", err)
		}
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Tree:     device,
			Gatherer: registry,
			Checks:   map[string]api.HealthChecker{"mqtt": mqttClient},
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, polling thermostat")

	// Blocks until the shutdown signal
	scheduler := bridge.NewScheduler(b, cfg.GetUpdateInterval(), log)
	if err := scheduler.Run(ctx); err != nil {
		return fmt.Errorf("poll scheduler: %w", err)
	}

	// Deferred calls run in reverse order: API server, Homie
	// $state=disconnected, MQTT disconnect.
	log.Info("quitting")
	return nil
}

// deviceIdentity returns the Homie device ID and display name.
// Configured values win; otherwise both derive from the thermostat's own
// name ("Living Room" becomes "livingroom").
func deviceIdentity(cfg config.HomieConfig, thermostatName string) (string, string, error) {
	name := cfg.Name
	if name == "" {
		name = thermostatName
	}
	id := cfg.DeviceID
	if id == "" {
		id = homie.SanitizeID(thermostatName)
	}
	if !homie.ValidID(id) {
		return "", "", fmt.Errorf("%w: device id %q (set homie.device_id)", homie.ErrInvalidID, id)
	}
	return id, name, nil
}

// mqttHomieAdapter adapts the infrastructure MQTT client to the homie
// package's MQTTClient interface. homie takes a plain func for the command
// handler; mqtt names it MessageHandler.
type mqttHomieAdapter struct {
	client *mqtt.Client
}

// Publish implements homie.MQTTClient.
func (a *mqttHomieAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// SubscribeCommands implements homie.MQTTClient.
func (a *mqttHomieAdapter) SubscribeCommands(filter string, qos byte, handler func(topic string, payload []byte) error) error {
	return a.client.SubscribeCommands(filter, qos, mqtt.MessageHandler(handler))
}

// IsConnected implements homie.MQTTClient.
func (a *mqttHomieAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
