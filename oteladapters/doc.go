// Package oteladapters provides OpenTelemetry implementations of the circulation observability interfaces.
//
//   - MetricsCollector: circulation.MetricsCollector and circulation.ContextualMetricsCollector
//   - TracingCollector: circulation.TracingCollector
//   - SlogBridgeLogger and OTelLogger: circulation.ContextualLogger
//
// InProcessTelemetry wires SDK providers that keep everything in memory, so a single simulation run
// can print a digest of its spans and metrics without any exporter or collector.
package oteladapters
