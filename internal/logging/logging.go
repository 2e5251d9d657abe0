// Package logging wires up the structured logger shared by every
// subsystem of the replication server.
package logging

import "go.uber.org/zap"

// New builds a *zap.SugaredLogger. development selects zap's
// human-readable console encoder and debug level; production selects
// the JSON encoder used by the long-running server process.
func New(development bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level.SetLevel(zap.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Noop returns a logger that discards everything, for tests that do not
// want to assert on log output.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
