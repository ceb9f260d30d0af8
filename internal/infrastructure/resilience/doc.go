/*
Package resilience guards calls to remote collaborators with a circuit breaker.

The breaker trips after a run of consecutive failures, rejects calls with
ErrCircuitOpen while open, then admits a limited number of probes. Probes that
all succeed close it again; any failed probe reopens it. Cancelled contexts
never count as failures.

	breaker := resilience.New("standby", resilience.Settings{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}, logger)

	bucket, err := resilience.Do(ctx, breaker, func(ctx context.Context) (int, error) {
		return client.Bucket(ctx, pkg, userID)
	})
*/
package resilience
