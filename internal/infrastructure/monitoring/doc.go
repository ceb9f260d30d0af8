/*
Package monitoring provides Prometheus metrics for the restriction daemon.

# Overview

Every Metrics value owns a private registry, so tests can build as many as
they like without duplicate-registration panics. The daemon serves it on
/metrics.

# Families

- Lane: events processed, faults, handling time, queue depth
- Restriction: level transitions, deferred actions, active keys, escalations
- Collaborators: outbound calls and failures
- HTTP and websocket traffic

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
