package am

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance; user and system config are not read
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "aecoa.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Evaluation.Workers)
	assert.Equal(t, 1e-9, cfg.Evaluation.EqualityTolerance)
	assert.Equal(t, "gfa_m2", cfg.Evaluation.DefaultDriver)
	assert.True(t, cfg.Gate.AutoAdvance)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "zero workers is valid", mutate: func(c *Config) { c.Evaluation.Workers = 0 }},
		{name: "negative workers", mutate: func(c *Config) { c.Evaluation.Workers = -1 }, wantErr: "evaluation.workers"},
		{name: "negative port", mutate: func(c *Config) { c.Server.Port = -1 }, wantErr: "server.port"},
		{name: "port too large", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "negative tolerance", mutate: func(c *Config) { c.Evaluation.EqualityTolerance = -0.1 }, wantErr: "equality_tolerance"},
		{name: "negative rate", mutate: func(c *Config) { c.Server.MutationsPerSecond = -1 }, wantErr: "mutations_per_second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetters_FallBackToDefaults(t *testing.T) {
	var cfg Config
	assert.Equal(t, DefaultDatabasePath, cfg.GetDatabasePath())
	assert.Equal(t, DefaultServerPort, cfg.GetServerPort())
	assert.Equal(t, DefaultEqualityTolerance, cfg.GetEqualityTolerance())
	assert.Equal(t, DefaultDriver, cfg.GetDefaultDriver())

	cfg.Evaluation.EqualityTolerance = 0.5
	assert.Equal(t, 0.5, cfg.GetEqualityTolerance())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[evaluation]
workers = 8
equality_tolerance = 0.001

[gate]
auto_advance = false
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Evaluation.Workers)
	assert.Equal(t, 0.001, cfg.Evaluation.EqualityTolerance)
	assert.False(t, cfg.Gate.AutoAdvance)
	// Untouched keys keep their defaults
	assert.Equal(t, "aecoa.db", cfg.Database.Path)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestMergeConfigFiles_LaterFilesWin(t *testing.T) {
	dir := t.TempDir()
	system := filepath.Join(dir, "system.toml")
	project := filepath.Join(dir, "project.toml")
	require.NoError(t, os.WriteFile(system, []byte("[database]\npath = \"system.db\"\n[evaluation]\nworkers = 2\n"), 0644))
	require.NoError(t, os.WriteFile(project, []byte("[evaluation]\nworkers = 6\n"), 0644))

	v := viper.New()
	SetDefaults(v)
	mergeConfigFiles(v, []string{system, filepath.Join(dir, "missing.toml"), project})

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, "system.db", cfg.Database.Path)
	assert.Equal(t, 6, cfg.Evaluation.Workers)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AECOA_DATABASE_PATH", "/tmp/from-env.db")
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env.db", cfg.Database.Path)

	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, cfg, again, "Load caches until Reset")
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "am.toml")

	require.NoError(t, WriteDefault(path, false))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	err = WriteDefault(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	assert.NoError(t, WriteDefault(path, true))
}

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[evaluation]\nworkers = 1\n"), 0644))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer cw.Stop()

	cw.debouncePeriod = 10 * time.Millisecond
	cw.loader = func() (*Config, error) { return LoadFromFile(path) }

	var workers atomic.Int64
	cw.OnReload(func(c *Config) error {
		workers.Store(int64(c.Evaluation.Workers))
		return nil
	})
	cw.Start()

	require.NoError(t, os.WriteFile(path, []byte("[evaluation]\nworkers = 9\n"), 0644))

	assert.Eventually(t, func() bool { return workers.Load() == 9 }, 2*time.Second, 10*time.Millisecond)
}

func TestConfigWatcher_IgnoresOwnWrite(t *testing.T) {
	cw := &ConfigWatcher{}
	assert.False(t, cw.checkOwnWrite())
	cw.MarkOwnWrite()
	assert.True(t, cw.checkOwnWrite())
	assert.False(t, cw.checkOwnWrite(), "flag clears after one check")
}
