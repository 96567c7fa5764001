package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notification-relay/internal/config"
	"github.com/notifyhub/notification-relay/internal/logger"
)

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")

	log, err := logger.New(config.Log{Level: "debug", File: path, MaxSize: 1})
	require.NoError(t, err)

	log.Info("hello from test")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := logger.New(config.Log{Level: "loud"})
	require.Error(t, err)
}
