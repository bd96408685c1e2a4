/*
Package monitoring provides Prometheus metrics for the gateway.

# Overview

Tracks the gateway's UI API, the analysis backend collaborator calls, and
the session/lineage/cache internals (refresh outcomes, stale discards,
corrupted cache entries, WebSocket fan-out).

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Time collaborator calls
	timer := monitoring.NewTimer(metrics, "history")
	// ... perform call ...
	timer.Stop("success")

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
