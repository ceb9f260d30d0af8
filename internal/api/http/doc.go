// Package http exposes the restriction controller and the in-process
// device model over a gin router.
//
// Read path: levels, per-package level, transition history, dump.
// Write path: the device signals that drive the controller (users,
// packages, buckets, flags, processes, properties, escalations), and
// refresh requests enqueued directly on the controller's lane.
//
// The /v1/standby routes serve the contract consumed by
// internal/adapters/standby, so one instance can act as the standby
// service of another.
package http
