package tctx

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetConfig(t *testing.T) {
	t.Setenv("WEBTREKK_PATH", t.TempDir())

	_, err := GetConfig()
	require.Error(t, err)

	require.NoError(t, SetConfig(&Config{TrackIds: []string{"123451234512345"}, TrackDomain: "https://q3.webtrekk.net", BatchSize: 5}))
	config, err := GetConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"123451234512345"}, config.TrackIds)
	require.Equal(t, 5, config.BatchSize)

	// Defaults are filled in for everything that wasn't set
	require.Equal(t, 15*time.Minute, config.RequestsInterval())
	require.Equal(t, 7*24*time.Hour, config.RetentionWindow())
	require.Equal(t, 24*time.Hour, config.CleanupInterval())
	require.Equal(t, 30*time.Minute, config.SessionTimeout())
	require.Equal(t, 30*time.Second, config.SendTimeout())
	require.Equal(t, 1, config.MaxParallelSends)
	require.Equal(t, logrus.InfoLevel, config.Level())
	require.NoError(t, config.Validate())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("WEBTREKK_PATH", t.TempDir())
	t.Setenv("WEBTREKK_TRACK_IDS", "111,222")
	t.Setenv("WEBTREKK_BATCH_SIZE", "7")
	t.Setenv("WEBTREKK_LOG_LEVEL", "debug")

	require.NoError(t, SetConfig(&Config{TrackIds: []string{"999"}, TrackDomain: "https://example.com", BatchSize: 50}))
	config, err := GetConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"111", "222"}, config.TrackIds)
	require.Equal(t, 7, config.BatchSize)
	require.Equal(t, "https://example.com", config.TrackDomain)
	require.Equal(t, logrus.DebugLevel, config.Level())
}

func TestLoadConfigFileYaml(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "webtrekk.yaml")
	contents := "track_ids:\n  - \"123\"\n  - \"456\"\ntrack_domain: https://q3.webtrekk.net\nretention_days: 3\nrequire_network: true\n"
	require.NoError(t, os.WriteFile(configFile, []byte(contents), 0o644))

	config, err := LoadConfigFile(configFile)
	require.NoError(t, err)
	require.Equal(t, []string{"123", "456"}, config.TrackIds)
	require.Equal(t, 3*24*time.Hour, config.RetentionWindow())
	require.True(t, config.RequireNetwork)
	require.NoError(t, config.Validate())
}

func TestLoadConfigFileJson(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "webtrekk.json")
	require.NoError(t, os.WriteFile(configFile, []byte(`{"track_ids":["1"],"track_domain":"https://example.com","max_parallel_sends":4}`), 0o644))

	config, err := LoadConfigFile(configFile)
	require.NoError(t, err)
	require.Equal(t, 4, config.MaxParallelSends)
}

func TestValidate(t *testing.T) {
	testcases := []struct {
		config Config
		valid  bool
	}{
		{Config{TrackIds: []string{"1"}, TrackDomain: "https://example.com"}, true},
		{Config{TrackIds: []string{}, TrackDomain: "https://example.com"}, false},
		{Config{TrackIds: []string{" "}, TrackDomain: "https://example.com"}, false},
		{Config{TrackIds: []string{"1"}, TrackDomain: ""}, false},
		{Config{TrackIds: []string{"1"}, TrackDomain: "example.com"}, false},
	}
	for _, tc := range testcases {
		err := tc.config.Validate()
		if tc.valid {
			require.NoError(t, err, "config=%#v", tc.config)
		} else {
			require.ErrorIs(t, err, ErrInvalidConfig, "config=%#v", tc.config)
		}
	}
}

func TestOpenSqliteDb(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenSqliteDb(dbPath, NewLogger(os.Stderr))
	require.NoError(t, err)
	require.True(t, db.Migrator().HasTable("track_requests"))
	require.True(t, db.Migrator().HasTable("custom_params"))
	require.True(t, db.Migrator().HasTable("preferences"))
	require.NoError(t, CloseDb(db))
}

func TestOpenSqliteDbTraced(t *testing.T) {
	db, err := openSqliteDb(filepath.Join(t.TempDir(), "traced.db"), NewLogger(os.Stderr), true)
	require.NoError(t, err)
	require.True(t, db.Migrator().HasTable("track_requests"))
	require.NoError(t, CloseDb(db))
}
