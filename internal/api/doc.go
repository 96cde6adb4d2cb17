// Package api implements the bridge's optional HTTP side-server.
//
// Endpoints:
//
//	GET /health                              component checks, 503 when degraded
//	GET /metrics                             Prometheus exposition
//	GET /api/v1/status                       uptime, Go runtime, Homie state
//	GET /api/v1/properties                   the whole property tree
//	GET /api/v1/properties/{node}            one node
//	GET /api/v1/properties/{node}/{property} one property
//
// The API is read-only. Property writes go through MQTT /set topics so that
// there is a single command path.
//
// Lifecycle:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
