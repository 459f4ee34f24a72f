package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_WritesToRotatedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "app.log")
	closer, logger, err := FileLogger(logrus.InfoLevel, path)
	require.NoError(t, err)

	logger.WithField("solicitation_id", "abc").Info("claimed")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"solicitation_id":"abc"`)
	require.Contains(t, string(data), `"msg":"claimed"`)
}

func TestConsoleLogger_Level(t *testing.T) {
	t.Parallel()

	logger := ConsoleLogger(logrus.WarnLevel)
	require.Equal(t, logrus.WarnLevel, logger.GetLevel())
}
