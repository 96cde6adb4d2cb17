// Package config handles loading and validating the thermostat bridge configuration.
//
// This package manages:
//   - Locating the configuration file (/etc/radio_thermostat, then ./)
//   - Loading configuration from YAML
//   - Overriding with environment variables
//   - Validation of required fields
//
// Configuration is loaded once at startup; intervals are not hot-reloadable.
//
// Usage:
//
//	cfg, path, err := config.LoadDefault()
//	if err != nil {
//	    return err
//	}
//	fmt.Println(path, cfg.GetUpdateInterval())
package config
