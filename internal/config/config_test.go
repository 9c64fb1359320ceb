package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDynamicConfigRoundTripsThroughYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dynamic.yaml")

	dc := &DynamicConfig{
		ResolveInterval:      60 * time.Second,
		ResolveCheckInterval: 5 * time.Second,
		ReplayJitterWindow:   time.Second,
		SlotIdleTimeout:      30 * time.Second,
		RequestMax:           65536,
	}
	require.NoError(t, dc.Write(path))

	got, err := ReadDynamicConfig(path)
	require.NoError(t, err)
	assert.Equal(t, dc, got)
}

func TestDynamicConfigRejectsNonPositiveIntervals(t *testing.T) {
	dc := &DynamicConfig{ResolveInterval: 0, ResolveCheckInterval: time.Second, SlotIdleTimeout: time.Second}
	assert.ErrorIs(t, dc.Sanity(), errNonPositiveInterval)
}

func TestPidFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := &Config{StaticConfig: StaticConfig{PidFile: filepath.Join(dir, "n3nd.pid")}}

	require.NoError(t, c.CreatePidFile())
	pid, err := ReadPidFile(c.PidFile)
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	require.NoError(t, c.DeletePidFile())
	_, err = ReadPidFile(c.PidFile)
	assert.Error(t, err)
}
