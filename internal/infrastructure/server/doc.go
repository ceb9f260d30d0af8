// Package server assembles the bgrestrict daemon.
//
// Server Lifecycle:
//  1. Load configuration from the environment
//  2. Build the device model, seeding it from a manifest when configured
//  3. Choose the standby source (in-process or remote)
//  4. Register trackers and create the restriction controller
//  5. Attach listeners: audit recorder, level stream
//  6. Set up HTTP routes and middleware
//  7. Serve: run the lane, mark the system ready, accept requests
//  8. Shut down in order: stream, HTTP, lane drain, audit flush
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
