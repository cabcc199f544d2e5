package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func resetGlobals(t *testing.T) {
	t.Cleanup(func() { Use(zap.NewNop(), nil) })
}

func TestGet_BeforeInitializeIsNoop(t *testing.T) {
	resetGlobals(t)
	Use(zap.NewNop(), nil)

	l := Get(CategoryAPI)
	require.NotNil(t, l)
	l.Info("dropped") // must not panic
}

func TestCategoryFilter(t *testing.T) {
	resetGlobals(t)
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core), map[string]bool{"store": false, "api": true})

	Get(CategoryStore).Info("hidden")
	Get(CategoryAPI).Info("shown")
	Get(CategoryCompat).Info("unlisted categories are enabled")

	assert.False(t, IsCategoryEnabled(CategoryStore))
	assert.True(t, IsCategoryEnabled(CategorySmoke))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "shown", entries[0].Message)
	assert.Equal(t, "api", entries[0].LoggerName)
	assert.Equal(t, "compat", entries[1].LoggerName)
}

func TestGet_CachesPerCategory(t *testing.T) {
	resetGlobals(t)
	core, _ := observer.New(zapcore.InfoLevel)
	Use(zap.New(core), nil)

	assert.Same(t, Get(CategoryStats), Get(CategoryStats))
}

func TestInitialize_WritesToFile(t *testing.T) {
	resetGlobals(t)
	path := filepath.Join(t.TempDir(), "chauffe.log")

	l, err := Initialize(Options{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)
	require.NotNil(t, l)

	Get(CategorySmoke).Info("smoke run finished", zap.String("overall", "success"))
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"logger":"smoke"`))
	assert.True(t, strings.Contains(string(data), "smoke run finished"))
}

func TestInitialize_RejectsBadLevel(t *testing.T) {
	resetGlobals(t)
	_, err := Initialize(Options{Level: "chatty"})
	assert.Error(t, err)
}

func TestInitialize_VerboseForcesDebug(t *testing.T) {
	resetGlobals(t)
	l, err := Initialize(Options{Level: "error", Format: "text", Verbose: true})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestAuditLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	a := NewAuditLogger(zap.New(core))

	a.CallStart("create_blockchain", "/api/blockchains", "owner-1")
	a.CallComplete("create_blockchain", "/api/blockchains", 201, 5*time.Millisecond)
	a.CallError("create_blockchain", "/api/blockchains", 0, time.Millisecond, errors.New("timeout"))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "owner-1", entries[0].ContextMap()["owner"])
	assert.Equal(t, int64(201), entries[1].ContextMap()["status"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "timeout", entries[2].ContextMap()["error"])
}
