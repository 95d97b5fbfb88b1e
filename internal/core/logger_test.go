package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewZapLoggerForwardsFields(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(obs))

	l.Debug("d", "op", "create_form")
	l.Info("i")
	l.Warn("w", "rule", "choice_options")
	l.Error("e", "error", "boom")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "create_form", entries[0].ContextMap()["op"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "choice_options", entries[2].ContextMap()["rule"])
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestNewZapLoggerNil(t *testing.T) {
	l := NewZapLogger(nil)
	assert.IsType(t, noopLogger{}, l)
	l.Info("ignored", "k", "v")
}

func TestClockFunc(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var c Clock = ClockFunc(func() time.Time { return fixed })
	assert.Equal(t, fixed, c.Now())
	assert.Equal(t, "UTC", systemClock{}.Now().Location().String())
}
