// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output
//
// Components take a *Logger and derive a named child so every line says
// where it came from:
//
//	logger := logging.NewDefault().Named("controller")
//	logger.Warn("unable to resolve package", logging.Package(pkg), logging.UserID(userID))
package logging
