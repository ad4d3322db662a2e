package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
}

func TestNewCreatesRotatedLogFile(t *testing.T) {
	dir := t.TempDir()
	log := New(Config{Level: "info", Format: "json", Path: dir})
	defer log.Close()

	log.Info().Str("k", "v").Msg("hello")

	data, err := os.ReadFile(filepath.Join(dir, "helmarr.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"hello"`)
}

func TestNewWithoutPathHasNoFileSink(t *testing.T) {
	log := New(Config{Level: "info", Format: "json"})
	assert.Nil(t, log.rotator)
	require.NoError(t, log.Close())
}
