// Package standby talks to a remote standby bucket service over HTTP. Calls
// are retried by the transport and guarded by a circuit breaker.
package standby
