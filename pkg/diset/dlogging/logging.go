// Package dlogging wires a github.com/sirupsen/logrus logger into
// github.com/datawire/dlib/dlog's context-carried logger, the same
// arrangement the teacher's CLI entrypoints use (a logrus.FieldLogger
// satisfies dlog's Logger interface, so cmd/disetclient can configure
// format/level with logrus and have every dlog.*f call in the library
// honor it without the library importing logrus directly).
package dlogging

import (
	"context"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
)

// Level is the set of levels NewContext accepts, kept narrower than
// logrus.Level; cmd/disetclient uses LevelInfo, and LevelDebug under
// --debug.
type Level int

const (
	LevelInfo Level = iota
	LevelDebug
	LevelTrace
)

// NewContext returns ctx wrapped with a logrus-backed dlog.Logger at the
// given level, formatted with logrus's text formatter the way the
// teacher's daemon/CLI processes do (full timestamps, no color
// auto-detection surprises in captured output).
func NewContext(ctx context.Context, level Level) context.Context {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	switch level {
	case LevelTrace:
		logger.SetLevel(logrus.TraceLevel)
	case LevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
	return dlog.WithLogger(ctx, dlog.WrapLogrus(logger))
}
