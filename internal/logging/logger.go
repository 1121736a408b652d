// Package logging constructs the zap loggers used across the replica
// core, mirroring the production/development split the teacher's
// cmd/ binaries use.
package logging

import "go.uber.org/zap"

// New builds a zap logger for the given environment. "production"
// yields JSON output at info level; anything else falls back to a
// human-readable development logger.
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// NewNop returns a logger that discards everything, useful as a default
// when a caller doesn't supply one.
func NewNop() *zap.Logger {
	return zap.NewNop()
}
