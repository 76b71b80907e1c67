// Package infra contains technical adapters: the PostgreSQL store, the
// MQTT and NATS publishers, logging setup and the Prometheus exporter.
// These packages depend only on the interfaces defined in the core
// packages.
package infra
