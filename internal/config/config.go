// Copyright 2024 LatentFS Authors
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

// Package config loads metabridge settings from the config directory.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"metabridge/internal/artifacts"
	"metabridge/internal/vfs"
)

// EnvConfigDir overrides the config directory.
const EnvConfigDir = "METABRIDGE_CONFIG_DIR"

// ConfigDir returns the config directory path.
// Uses METABRIDGE_CONFIG_DIR if set, otherwise defaults to ~/.metabridge.
// This is computed dynamically to support test isolation.
func ConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".metabridge")
}

// SettingsPath returns the settings file path
func SettingsPath() string {
	return filepath.Join(ConfigDir(), "settings.yaml")
}

// DefaultStorePath returns the metadata store used when none is configured
func DefaultStorePath() string {
	return filepath.Join(ConfigDir(), "meta.db")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(ConfigDir(), 0700)
}

// InitConfigDir creates the config directory and writes the default
// settings file unless one exists. Reports whether the file was created.
func InitConfigDir() (bool, error) {
	if err := EnsureConfigDir(); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, artifacts.GlobalSettings, 0600); err != nil {
		return false, fmt.Errorf("failed to create default settings: %w", err)
	}
	return true, nil
}

// Settings are the user-facing metabridge settings.
type Settings struct {
	VolumePrefix      string   `yaml:"volume_prefix"`
	FileNameRequired  bool     `yaml:"file_name_required"`
	FileInfoTimeoutMs int      `yaml:"file_info_timeout_ms" validate:"min=0"`
	Workers           int      `yaml:"workers" validate:"min=1,max=256"`
	LogLevel          string   `yaml:"log_level" validate:"oneof=trace debug info warn off"`
	StorePath         string   `yaml:"store_path"`
	BusyTimeoutMs     int      `yaml:"busy_timeout_ms" validate:"min=0"`
	MappedPatterns    []string `yaml:"mapped_patterns" validate:"dive,required"`
	ImagePatterns     []string `yaml:"image_patterns" validate:"dive,required"`
}

// ApplyDefaults fills zero-value fields with their defaults.
func (s *Settings) ApplyDefaults() {
	if s.Workers == 0 {
		s.Workers = 4
	}
	s.LogLevel = strings.ToLower(s.LogLevel)
	if s.LogLevel == "" || s.LogLevel == "none" {
		s.LogLevel = "off"
	}
	if s.StorePath == "" {
		s.StorePath = DefaultStorePath()
	}
}

// VolumeParams converts the settings into volume parameters.
func (s *Settings) VolumeParams() vfs.VolumeParams {
	return vfs.VolumeParams{
		Prefix:           s.VolumePrefix,
		FileNameRequired: s.FileNameRequired,
		FileInfoTimeout:  time.Duration(s.FileInfoTimeoutMs) * time.Millisecond,
	}
}

// Oracle builds the mapping oracle described by the pattern lists.
func (s *Settings) Oracle() vfs.MappingOracle {
	if len(s.MappedPatterns) == 0 && len(s.ImagePatterns) == 0 {
		return vfs.AllowAll{}
	}
	return vfs.NewPatternOracle(s.MappedPatterns, s.ImagePatterns)
}

var validate = validator.New()

// Validate checks the settings against their struct tags.
func Validate(s *Settings) error {
	if err := validate.Struct(s); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return err
	}
	return nil
}

// Parse decodes settings, applies defaults and validates them.
func Parse(data []byte) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	s.ApplyDefaults()
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads the settings file. Falls back to the embedded defaults if the
// file doesn't exist.
func Load() (*Settings, error) {
	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		data = artifacts.GlobalSettings
	}
	return Parse(data)
}

// Save writes s to the settings file.
func Save(s *Settings) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	header := []byte("# metabridge settings\n# See: metabridge --help\n\n")
	return os.WriteFile(SettingsPath(), append(header, data...), 0600)
}

// ApplyLogLevel configures logrus for level; "off" discards output.
func ApplyLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "off", "none", "":
		log.SetOutput(io.Discard)
		return nil
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	log.SetOutput(os.Stderr)
	return nil
}
