package zlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "verbose"})
	assert.Error(t, err)
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	l, err := New(Options{Level: "info", Format: "json", Path: path, MaxSizeMB: 1})
	require.NoError(t, err)

	l.Info("model loaded", zap.String("backend", "fake"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"model loaded"`)
	assert.Contains(t, string(data), `"backend":"fake"`)
}

func TestReplaceRoutesPackageHelpers(t *testing.T) {
	prev := L()
	defer Replace(prev)

	core, logs := observer.New(zapcore.DebugLevel)
	Replace(zap.New(core))

	Debug("d")
	Info("i", zap.Int("n", 1))
	Warn("w")
	Error("e")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "i", entries[1].Message)
	assert.Equal(t, int64(1), entries[1].ContextMap()["n"])
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}
