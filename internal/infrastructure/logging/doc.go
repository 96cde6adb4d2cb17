// Package logging provides structured logging for the thermostat bridge.
//
// This package wraps go.uber.org/zap so the rest of the code logs with a
// plain message plus key/value pairs and never imports zap directly.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("bridge started", "device_id", id)
//	logger.Warn("refresh failed", "error", err)
//
// Never log MQTT passwords.
package logging
