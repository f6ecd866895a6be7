package gateway

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDSNPriority(t *testing.T) {
	names := []string{"TEST_DSN_A", "TEST_DSN_B", "TEST_DSN_C"}

	t.Setenv("TEST_DSN_A", "")
	t.Setenv("TEST_DSN_B", "postgres://b")
	t.Setenv("TEST_DSN_C", "postgres://c")

	dsn, source, err := ResolveDSN(names, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://b", dsn)
	assert.Equal(t, "TEST_DSN_B", source)

	t.Setenv("TEST_DSN_A", "postgres://a")
	dsn, source, err = ResolveDSN(names, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://a", dsn)
	assert.Equal(t, "TEST_DSN_A", source)
}

func TestResolveDSNWhitespaceIsEmpty(t *testing.T) {
	t.Setenv("TEST_DSN_A", "   ")
	_, _, err := ResolveDSN([]string{"TEST_DSN_A"}, nil)
	assert.True(t, errors.Is(err, ErrMissingConfig))
}

func TestResolveDSNFromEnvFiles(t *testing.T) {
	t.Setenv("TEST_DSN_FILE", "")

	dir := t.TempDir()
	base := filepath.Join(dir, ".env")
	local := filepath.Join(dir, ".env.local")
	require.NoError(t, os.WriteFile(base, []byte("TEST_DSN_FILE=postgres://from-env\n"), 0644))
	require.NoError(t, os.WriteFile(local, []byte("TEST_DSN_FILE=\"postgres://from-local\"\n"), 0644))

	dsn, source, err := ResolveDSN([]string{"TEST_DSN_FILE"}, []string{base, local, filepath.Join(dir, "missing.env")})
	require.NoError(t, err)
	assert.Equal(t, "postgres://from-local", dsn)
	assert.Equal(t, "TEST_DSN_FILE", source)

	// process environment wins over files
	t.Setenv("TEST_DSN_FILE", "postgres://from-process")
	dsn, _, err = ResolveDSN([]string{"TEST_DSN_FILE"}, []string{base, local})
	require.NoError(t, err)
	assert.Equal(t, "postgres://from-process", dsn)
}

func TestResolveDSNEarlierNameFromFileWins(t *testing.T) {
	t.Setenv("TEST_DSN_FIRST", "")
	t.Setenv("TEST_DSN_SECOND", "postgres://second-from-process")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TEST_DSN_FIRST=postgres://first-from-file\n"), 0644))

	dsn, source, err := ResolveDSN([]string{"TEST_DSN_FIRST", "TEST_DSN_SECOND"}, []string{envFile})
	require.NoError(t, err)
	assert.Equal(t, "postgres://first-from-file", dsn)
	assert.Equal(t, "TEST_DSN_FIRST", source)
}

func TestResolveDSNDoesNotMutateEnvironment(t *testing.T) {
	t.Setenv("TEST_DSN_SIDE", "")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TEST_DSN_SIDE=postgres://x\n"), 0644))

	_, _, err := ResolveDSN([]string{"TEST_DSN_SIDE"}, []string{envFile})
	require.NoError(t, err)
	assert.Equal(t, "", os.Getenv("TEST_DSN_SIDE"))
}

func TestResolveDSNMissing(t *testing.T) {
	t.Setenv("TEST_DSN_NONE", "")

	_, _, err := ResolveDSN([]string{"TEST_DSN_NONE"}, []string{filepath.Join(t.TempDir(), ".env")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingConfig))
	assert.Contains(t, err.Error(), "configuration error")
	assert.Contains(t, err.Error(), "TEST_DSN_NONE")
}
