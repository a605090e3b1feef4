// Package logging wires up the structured logger used throughout a
// run: zap does the actual logging, wrapped behind the logr.Logger
// interface so the rest of the code base (dispatch, execplane, heal,
// iteration) depends on logr rather than zap directly.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logr.Logger backed by a production zap config, with
// the level adjustable at construction time (e.g. from the -debug flag).
func New(debug bool) (logr.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	zl, err := cfg.Build()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}
