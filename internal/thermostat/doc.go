// Package thermostat is a client for Radio Thermostat CT-series Wi-Fi
// thermostats (CT30, CT50, CT80 and the 3M-50 family).
//
// The device exposes a small HTTP/JSON API on port 80:
//
//	GET  /tstat          current temperature, modes, hold, run state
//	GET  /tstat/ttemp    heat and cool setpoints
//	GET  /tstat/datalog  today/yesterday heating and cooling runtime
//	GET  /sys/name       user-assigned name
//	POST /tstat          {"tmode": 2}, {"t_heat": 68}, ...
//
// Each field comes back as a Reading: the raw device value and a display
// string ("Cool" for tmode 2, "72.5" for temp 72.5).
//
// When no host is configured, Discover finds the device with SSDP.
package thermostat
