package logger

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"hydrogen.im/hydrogen-worker/app/utils/contextkeys"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

var (
	once     sync.Once
	instance *logrus.Logger
)

func GetLogger() *logrus.Logger {
	once.Do(func() {
		instance = logrus.New()
		instance.SetOutput(os.Stdout)
		env := environment_variables.Current()
		Configure(instance, env.LOG_LEVEL, env.LOG_FORMAT)
	})
	return instance
}

// Configure applies level and format settings; unknown levels fall back to info.
func Configure(l *logrus.Logger, level string, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// FromContext returns the shared logger tagged with the request id carried
// by ctx, if any.
func FromContext(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(GetLogger())
	if id, ok := ctx.Value(contextkeys.RequestId{}).(string); ok && id != "" {
		entry = entry.WithField("request_id", id)
	}
	return entry
}
