package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"hydrogen.im/hydrogen-worker/app/utils/contextkeys"
)

func TestConfigure(t *testing.T) {
	l := logrus.New()
	Configure(l, "debug", "json")
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	Configure(l, "loud", "text")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)
}

func TestFromContextTagsRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), contextkeys.RequestId{}, "req-1")
	assert.Equal(t, "req-1", FromContext(ctx).Data["request_id"])

	_, ok := FromContext(context.Background()).Data["request_id"]
	assert.False(t, ok)

	var buf bytes.Buffer
	l := GetLogger()
	prev := l.Out
	l.SetOutput(&buf)
	defer l.SetOutput(prev)
	FromContext(ctx).Warn("cache miss")
	assert.Contains(t, buf.String(), "req-1")
}
