package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.yaml")

	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", conf.Listen)
	assert.Equal(t, 60, conf.HorizonDays)
	assert.True(t, conf.Mirror.Enabled)

	// First run leaves an owner-only config file behind.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Second load reads the written file back identically.
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, conf, again)
}

func TestLoad_PartialFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timezone: Asia/Seoul\nhorizon_days: 14\n"), 0o600))

	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Seoul", conf.Timezone)
	assert.Equal(t, 14, conf.HorizonDays)
	assert.Equal(t, 90, conf.RetentionDays, "unset fields fall back to defaults")
	assert.Equal(t, "0 * * * *", conf.AdvanceCron)
	assert.Equal(t, "cadence.ics", conf.Mirror.Path)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	conf, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), conf)
}

func TestSave_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "cadence.yaml")
	require.NoError(t, Save(path, DefaultConfig()))

	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cadence.db", conf.DBPath)
}

func TestNormalize_ClampsNonPositiveDurations(t *testing.T) {
	conf := &Config{HorizonDays: -5, RetentionDays: 0}
	conf.Normalize()
	assert.Equal(t, 60, conf.HorizonDays)
	assert.Equal(t, 90, conf.RetentionDays)
}
