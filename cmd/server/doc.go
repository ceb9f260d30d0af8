// Package main is the entry point of the bgrestrict daemon.
//
// The daemon hosts the background restriction controller together with an
// in-process device model (users, packages, standby buckets, processes)
// and exposes both over HTTP and a websocket level stream.
//
// Settings come from the environment (see internal/infrastructure/config)
// and any flag given on the command line wins over its variable.
//
// Usage:
//
//	# Seeded device, policy files and history
//	./server -manifest device.yaml -policy '/etc/bgrestrict/*.yaml' -audit audit.db
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// SIGINT or SIGTERM drains the controller lane and flushes pending
// history before the process exits.
package main
