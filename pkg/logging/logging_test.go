package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesToFile(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)

	path := filepath.Join(t.TempDir(), "logs", "harvest.log")
	closer, err := Setup(Options{Level: "debug", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logrus.Info("写入测试日志")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "写入测试日志")
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestSetupInvalidLevelFallsBackToInfo(t *testing.T) {
	closer, err := Setup(Options{Level: "verbose"})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}
