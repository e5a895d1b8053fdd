// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package directory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserConfigPathFromEnv(t *testing.T) {
	want := filepath.Join(t.TempDir(), "sniff.yaml")
	t.Setenv(UserConfigPathEnv, want)

	got, err := GetUserConfigPath()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMissingConfigIsEmpty(t *testing.T) {
	t.Setenv(UserConfigPathEnv, filepath.Join(t.TempDir(), "none", "config.yaml"))

	cfg, err := GetUserConfig()
	require.NoError(t, err)
	assert.False(t, cfg.IsSet("modbus.baud"))
}

func TestWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	t.Setenv(UserConfigPathEnv, path)

	cfg, err := GetUserConfig()
	require.NoError(t, err)
	cfg.Set("modbus.baud", 19200)
	require.NoError(t, WriteConfig(cfg))

	_, err = os.Stat(filepath.Join(filepath.Dir(path), ".config.tmp.yaml"))
	assert.True(t, os.IsNotExist(err))

	again, err := GetUserConfig()
	require.NoError(t, err)
	assert.Equal(t, 19200, again.GetInt("modbus.baud"))
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modbus:\n  gap-ms: 20\n"), 0644))
	t.Setenv(UserConfigPathEnv, path)
	t.Setenv("SNIFF_MODBUS_GAP_MS", "35")

	cfg, err := GetUserConfig()
	require.NoError(t, err)
	assert.Equal(t, 20.0, cfg.GetFloat64("modbus.gap-ms"))

	BindEnv(cfg)
	assert.Equal(t, 35.0, cfg.GetFloat64("modbus.gap-ms"))
}

func TestBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modbus: [\n"), 0644))
	t.Setenv(UserConfigPathEnv, path)

	_, err := GetUserConfig()
	assert.ErrorContains(t, err, "failed to read user config")
}
