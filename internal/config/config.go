// Copyright 2024 RVFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rvfs/internal/artifacts"
	"rvfs/internal/layout"
	"rvfs/internal/record"
	"rvfs/internal/vtree"
)

// getConfigDir returns the config directory path.
// Uses RVFS_CONFIG_DIR env var if set, otherwise defaults to ~/.rvfs.
// This is computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("RVFS_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rvfs")
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// SettingsPath returns the settings file path
func SettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// InitConfigDir creates the config directory and writes the default settings
// file if it does not exist yet.
func InitConfigDir() error {
	if err := os.MkdirAll(getConfigDir(), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	settingsPath := SettingsPath()
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, artifacts.GlobalSettings, 0600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return nil
}

// Settings is the rvfs configuration.
type Settings struct {
	LogLevel           string        `yaml:"log_level"` // trace, debug, info, warn, off (case insensitive)
	LogFile            string        `yaml:"log_file"`
	TempDir            string        `yaml:"temp_dir"`
	MountDirName       string        `yaml:"mountdir_name"`
	RecordStride       int64         `yaml:"record_stride"`
	LOFlag             string        `yaml:"lo_flag"`
	DigestLength       int           `yaml:"digest_length"`
	RefreshCommand     string        `yaml:"refresh_command"`     // empty skips the refresh step
	MaterializeCommand string        `yaml:"materialize_command"`
	CollaboratorWaitMS int           `yaml:"collaborator_wait_ms"`
	Layout             layout.Params `yaml:"layout"`
}

// Defaults parses the embedded default settings.
func Defaults() *Settings {
	var s Settings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &s); err != nil {
		panic("failed to parse embedded settings: " + err.Error())
	}
	return &s
}

// Load reads settings from path (SettingsPath() when empty), overlaid on the
// embedded defaults. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = SettingsPath()
	}
	s := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return s, nil
}

// Validate rejects settings the builder or scaler cannot work with.
func (s *Settings) Validate() error {
	if s.RecordStride <= 0 {
		return fmt.Errorf("record_stride must be positive, got %d", s.RecordStride)
	}
	if s.DigestLength < 0 {
		return fmt.Errorf("digest_length must not be negative, got %d", s.DigestLength)
	}
	if s.TempDir == "" {
		return errors.New("temp_dir must be set")
	}
	if s.MountDirName == "" {
		return errors.New("mountdir_name must be set")
	}
	if s.Layout.TickSeparation <= 0 {
		return fmt.Errorf("layout.tick_separation must be positive, got %g", s.Layout.TickSeparation)
	}
	for _, f := range s.Layout.ScaleFactors {
		if f <= 0 {
			return fmt.Errorf("layout.scale_factors must be positive, got %g", f)
		}
	}
	return nil
}

// Marshal renders the settings as YAML.
func (s *Settings) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// LoggingEnabled returns whether logging is enabled (any level other than "off", "none" or empty).
func (s *Settings) LoggingEnabled() bool {
	level := s.NormalizedLogLevel()
	return level != "" && level != "none" && level != "off"
}

// NormalizedLogLevel returns the lowercase logging level.
func (s *Settings) NormalizedLogLevel() string {
	return strings.ToLower(strings.TrimSpace(s.LogLevel))
}

// RecordOptions returns the ledger decoding options.
func (s *Settings) RecordOptions() record.Options {
	return record.Options{LOFlag: s.LOFlag}
}

// TreeOptions returns the build options matching the layout geometry.
func (s *Settings) TreeOptions() vtree.Options {
	return vtree.Options{
		Stride:     s.RecordStride,
		LeftMargin: s.Layout.LeftMargin,
		Radius:     s.Layout.Radius,
	}
}

// CollaboratorWait returns how long to wait for collaborator output files.
func (s *Settings) CollaboratorWait() time.Duration {
	return time.Duration(s.CollaboratorWaitMS) * time.Millisecond
}
