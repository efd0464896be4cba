// Package metrics provides the Prometheus and InfluxDB sinks, the event
// bus collector feeding them, and the /metrics HTTP endpoint.
package metrics
