// Package log wraps logrus behind the call shape the rest of this codebase
// uses throughout: log.Start(), then log.NewFieldedLogger(&log.Fields{...}),
// then logger.Info("message", "key", value, ...). Every component keeps the
// same call sites regardless of which concrete logging library backs them.
package log

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields is a set of structured key/value pairs attached to every message
// logged through a FieldedLogger.
type Fields map[string]interface{}

// FieldedLogger logs slog-style variadic key/value pairs through a logrus
// entry pre-populated with Fields.
type FieldedLogger struct {
	entry *logrus.Entry
}

var (
	root     *logrus.Logger
	initOnce sync.Once
)

// Start initializes the global logrus logger. It is idempotent and safe to
// call from every component's Start function, mirroring the teacher's
// log.Start() call sites.
func Start() error {
	initOnce.Do(func() {
		root = logrus.New()
		root.SetOutput(os.Stderr)
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		root.SetLevel(levelFromEnv())
	})
	return nil
}

// Stop flushes and releases logging resources. logrus writes synchronously
// to os.Stderr so there is nothing to flush, but the hook exists so callers
// can always pair Start/Stop the way they pair every other component.
func Stop() {}

// NewFieldedLogger returns a logger carrying the given structured fields on
// every subsequent call.
func NewFieldedLogger(fields *Fields) *FieldedLogger {
	if root == nil {
		Start()
	}
	f := logrus.Fields{}
	if fields != nil {
		for k, v := range *fields {
			f[k] = v
		}
	}
	return &FieldedLogger{entry: root.WithFields(f)}
}

func (l *FieldedLogger) Debug(msg string, kv ...interface{}) { l.log(logrus.DebugLevel, msg, kv) }
func (l *FieldedLogger) Info(msg string, kv ...interface{})  { l.log(logrus.InfoLevel, msg, kv) }
func (l *FieldedLogger) Warn(msg string, kv ...interface{})  { l.log(logrus.WarnLevel, msg, kv) }
func (l *FieldedLogger) Error(msg string, kv ...interface{}) { l.log(logrus.ErrorLevel, msg, kv) }

func (l *FieldedLogger) log(level logrus.Level, msg string, kv []interface{}) {
	entry := l.entry
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		entry = entry.WithField(key, kv[i+1])
	}
	entry.Log(level, msg)
}

// levelFromEnv reads the verbosity filter named in SPEC_FULL.md §4.9.
func levelFromEnv() logrus.Level {
	switch os.Getenv("WIKIDUMP_LOG_LEVEL") {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
