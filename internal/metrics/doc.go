// Package metrics provides Prometheus instrumentation for HTTP, the HSG
// engine, the analyzer battery, the enforcement gate, the cache, and the
// database pool, all registered through promauto under one namespace.
package metrics
