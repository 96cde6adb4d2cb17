package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/radiotherm-homie/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// clientIDPrefix prefixes generated client IDs.
	clientIDPrefix = "radiotherm-"
)

// buildClientOptions creates paho MQTT options from the bridge config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID (generated when not configured)
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff
//   - TLS configuration (if enabled)
//   - Clean session mode
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = generateClientID()
	}
	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Homie state is retained on the broker, so no persistent session is needed.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(time.Duration(cfg.KeepAlive) * time.Second)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// generateClientID returns a unique client ID so two bridges never kick
// each other off the broker.
func generateClientID() string {
	return clientIDPrefix + uuid.NewString()[:8]
}

// configureLWT registers the Last Will and Testament, if any.
//
// For the Homie device this is "$state" = "lost", retained, so controllers
// see the device drop even when the process is killed.
func configureLWT(opts *pahomqtt.ClientOptions, will *Will) {
	if will == nil || will.Topic == "" {
		return
	}
	opts.SetBinaryWill(will.Topic, will.Payload, will.QoS, will.Retained)
}
