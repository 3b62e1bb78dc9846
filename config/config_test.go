package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"GALAXY_PORT", "GALAXY_DB_PATH", "GALAXY_SESSION_SECRET", "GALAXY_GROUPS", "GALAXY_CONFIG_FILE", "GALAXY_SESSION_HOURS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "instance/user_data.db", cfg.Database.Path)
	assert.Equal(t, 24*time.Hour, cfg.Session.Expiration)
	assert.True(t, cfg.Session.GeneratedSecret)
	assert.NotEmpty(t, cfg.Session.Secret)
	assert.Equal(t, DefaultGroups, cfg.Groups)
}

func TestLoadEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GALAXY_PORT", "9090")
	t.Setenv("GALAXY_SESSION_SECRET", "s3cret")
	t.Setenv("GALAXY_GROUPS", " Engineer, artist,engineer,, ")
	t.Setenv("GALAXY_SESSION_HOURS", "2")
	t.Setenv("GALAXY_CONFIG_FILE", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []byte("s3cret"), cfg.Session.Secret)
	assert.False(t, cfg.Session.GeneratedSecret)
	assert.Equal(t, []string{"engineer", "artist"}, cfg.Groups)
	assert.Equal(t, 2*time.Hour, cfg.Session.Expiration)
	assert.True(t, cfg.IsGroup("artist"))
	assert.False(t, cfg.IsGroup("pirate"))
}

func TestLoadInvalidSessionHours(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GALAXY_SESSION_HOURS", "soon")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("GALAXY_PORT", "9090")
	t.Setenv("GALAXY_SESSION_HOURS", "24")

	path := filepath.Join(dir, "galaxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7070\"\ndatabase_path: data/g.db\nsession_hours: 6\ngroups: [student, Other]\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "data/g.db", cfg.Database.Path)
	assert.Equal(t, 6*time.Hour, cfg.Session.Expiration)
	assert.Equal(t, []string{"student", "other"}, cfg.Groups)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("GALAXY_SESSION_HOURS", "24")
	os.Unsetenv("GALAXY_DB_PATH")
	t.Cleanup(func() { os.Unsetenv("GALAXY_DB_PATH") })
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GALAXY_DB_PATH=from-dotenv.db\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.db", cfg.Database.Path)
}
