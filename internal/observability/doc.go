// Package observability builds the zap loggers used across the service.
//
// Production deployments log JSON; local development uses the console
// encoder with colored levels.
package observability
