package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "8090")
	p, err := Port("TEST_PORT", "8080")
	require.NoError(t, err)
	assert.Equal(t, "8090", p)

	t.Setenv("TEST_PORT", "99999")
	_, err = Port("TEST_PORT", "8080")
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	t.Setenv("TEST_TTL", "")
	d, err := Duration("TEST_TTL", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	t.Setenv("TEST_TTL", "30")
	d, err = Duration("TEST_TTL", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	t.Setenv("TEST_TTL", "2h")
	d, err = Duration("TEST_TTL", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, d)

	t.Setenv("TEST_TTL", "soon")
	_, err = Duration("TEST_TTL", time.Minute)
	assert.Error(t, err)
}

func TestIntBoolList(t *testing.T) {
	t.Setenv("TEST_INT", "12")
	n, err := Int("TEST_INT", 3)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	t.Setenv("TEST_BOOL", "yes")
	assert.True(t, Bool("TEST_BOOL", false))
	t.Setenv("TEST_BOOL", "")
	assert.True(t, Bool("TEST_BOOL", true))

	t.Setenv("TEST_LIST", " a, ,b ,")
	assert.Equal(t, []string{"a", "b"}, List("TEST_LIST"))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LEGALAID_DOTENV_KEY=from-file\n"), 0o600))

	t.Setenv("LEGALAID_DOTENV_KEY", "")
	require.NoError(t, os.Unsetenv("LEGALAID_DOTENV_KEY"))
	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("LEGALAID_DOTENV_KEY"))
}
