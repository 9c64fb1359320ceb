/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config implements the daemon's static and dynamic configuration,
// split the way ptp4u/server/config.go splits its own: StaticConfig holds
// what requires a restart to change, DynamicConfig holds the tunable
// settings and round-trips through YAML. n3nd reads the YAML file once at
// startup; nothing re-reads it while the daemon runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	yaml "gopkg.in/yaml.v2"
)

var errNonPositiveInterval = errors.New("config: interval must be positive")

// StaticConfig is the set of options that require a daemon restart to
// change: which TAP interface to bind to (named only — the tunnel device
// itself is an external collaborator per spec.md §1), where the slot
// reactor listens, the PID file path, and the log level.
type StaticConfig struct {
	ConfigFile        string
	Interface         string
	ManagementAddr    string // host:port for the TCP listener
	ManagementSocket  string // filesystem path for the Unix listener; empty disables it
	PidFile           string
	LogLevel          string
}

// DynamicConfig is the set of tunable options loaded from YAML: resolver
// timing, the replay-stamp jitter window, and the reactor's idle-slot
// timeout and per-request size cap.
type DynamicConfig struct {
	ResolveInterval      time.Duration
	ResolveCheckInterval time.Duration
	ReplayJitterWindow   time.Duration
	SlotIdleTimeout      time.Duration
	RequestMax           int
}

// Sanity validates that every interval is positive, the one invariant
// YAML unmarshalling can't enforce on its own.
func (dc *DynamicConfig) Sanity() error {
	if dc.ResolveInterval <= 0 || dc.ResolveCheckInterval <= 0 || dc.SlotIdleTimeout <= 0 {
		return errNonPositiveInterval
	}
	return nil
}

// ReadDynamicConfig reads and validates a DynamicConfig from a YAML file.
func ReadDynamicConfig(path string) (*DynamicConfig, error) {
	dc := &DynamicConfig{}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dynamic config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dc); err != nil {
		return nil, fmt.Errorf("parsing dynamic config %q: %w", path, err)
	}
	if err := dc.Sanity(); err != nil {
		return nil, err
	}
	return dc, nil
}

// Write marshals dc back to path as YAML.
func (dc *DynamicConfig) Write(path string) error {
	d, err := yaml.Marshal(dc)
	if err != nil {
		return fmt.Errorf("marshaling dynamic config: %w", err)
	}
	return os.WriteFile(path, d, 0644)
}

// Config is the daemon's full configuration.
type Config struct {
	StaticConfig
	DynamicConfig
}

// CreatePidFile writes the current process's PID to c.PidFile.
func (c *Config) CreatePidFile() error {
	return os.WriteFile(c.PidFile, []byte(fmt.Sprintf("%d\n", unix.Getpid())), 0644)
}

// DeletePidFile removes c.PidFile.
func (c *Config) DeletePidFile() error {
	return os.Remove(c.PidFile)
}

// ReadPidFile reads a PID previously written by CreatePidFile.
func ReadPidFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading pid file %q: %w", path, err)
	}
	return strconv.Atoi(strings.TrimSpace(string(content)))
}
