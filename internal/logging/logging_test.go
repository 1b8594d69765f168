package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewParsesValidLevel(t *testing.T) {
	logger := New(Options{Level: "debug", Console: true})
	require.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}

func TestNewFallsBackToInfoOnInvalidLevel(t *testing.T) {
	logger := New(Options{Level: "not-a-level", Console: true})
	require.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestNewWritesToRotatedFileWhenFilePathSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxytap.log")
	logger := New(Options{Level: "info", FilePath: path})
	logger.Info().Msg("hello")

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestMaxOrFallsBackOnNonPositive(t *testing.T) {
	require.Equal(t, 50, maxOr(0, 50))
	require.Equal(t, 50, maxOr(-1, 50))
	require.Equal(t, 10, maxOr(10, 50))
}

func TestForSessionAddsSessionField(t *testing.T) {
	base := New(Options{Level: "info", Console: true})
	child := ForSession(base, 42)
	require.Equal(t, base.GetLevel(), child.GetLevel())

	var buf bytes.Buffer
	ForSession(zerolog.New(&buf), 42).Info().Msg("hi")
	require.Contains(t, buf.String(), `"session":42`)
}
