package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/radiotherm-homie/internal/thermostat"
)

const metricsNamespace = "radiotherm"

// Metrics holds the bridge's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	refreshes   *prometheus.CounterVec
	commands    *prometheus.CounterVec
	lastRefresh prometheus.Gauge
	temperature prometheus.Gauge
	setpoint    *prometheus.GaugeVec
	runtime     *prometheus.GaugeVec
	mode        *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "refreshes_total",
				Help:      "Device refreshes by result.",
			},
			[]string{"result"}),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commands_total",
				Help:      "Property commands by property and result.",
			},
			[]string{"property", "result"}),
		lastRefresh: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_refresh_timestamp_seconds",
				Help:      "Unix time of the last successful refresh.",
			}),
		temperature: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "temperature_fahrenheit",
				Help:      "Current room temperature in degrees Fahrenheit.",
			}),
		setpoint: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "setpoint_fahrenheit",
				Help:      "Target temperature in degrees Fahrenheit.",
			},
			[]string{"kind"}),
		runtime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "runtime_minutes",
				Help:      "Heating or cooling runtime from the device data log.",
			},
			[]string{"day", "kind"}),
		mode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "mode_code",
				Help:      "Raw device code of each mode field.",
			},
			[]string{"field"}),
	}
	reg.MustRegister(m.refreshes)
	reg.MustRegister(m.commands)
	reg.MustRegister(m.lastRefresh)
	reg.MustRegister(m.temperature)
	reg.MustRegister(m.setpoint)
	reg.MustRegister(m.runtime)
	reg.MustRegister(m.mode)
	return m
}

func (m *Metrics) refreshSucceeded() {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues("success").Inc()
	m.lastRefresh.Set(float64(time.Now().Unix()))
}

func (m *Metrics) refreshFailed() {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues("error").Inc()
}

func (m *Metrics) commandHandled(property string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(property, result).Inc()
}

func (m *Metrics) observeSnapshot(snap *thermostat.Snapshot) {
	if m == nil || snap == nil {
		return
	}
	m.temperature.Set(snap.Temperature.Raw)
	m.setpoint.WithLabelValues("heat").Set(snap.HeatSetpoint.Raw)
	m.setpoint.WithLabelValues("cool").Set(snap.CoolSetpoint.Raw)

	m.mode.WithLabelValues("tmode").Set(float64(snap.SystemMode.Raw))
	m.mode.WithLabelValues("fmode").Set(float64(snap.FanMode.Raw))
	m.mode.WithLabelValues("hold").Set(float64(snap.Hold.Raw))
	m.mode.WithLabelValues("override").Set(float64(snap.Override.Raw))
	m.mode.WithLabelValues("tstate").Set(float64(snap.SystemStatus.Raw))
	m.mode.WithLabelValues("fstate").Set(float64(snap.FanStatus.Raw))

	minutes := func(r thermostat.Runtime) float64 { return float64(r.Hour*60 + r.Minute) }
	m.runtime.WithLabelValues("today", "heat").Set(minutes(snap.Runtime.Today.Heat))
	m.runtime.WithLabelValues("today", "cool").Set(minutes(snap.Runtime.Today.Cool))
	m.runtime.WithLabelValues("yesterday", "heat").Set(minutes(snap.Runtime.Yesterday.Heat))
	m.runtime.WithLabelValues("yesterday", "cool").Set(minutes(snap.Runtime.Yesterday.Cool))
}
