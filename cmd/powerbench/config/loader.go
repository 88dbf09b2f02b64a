// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/powerbench/pkg/logging"
)

// DefaultPath returns ~/.powerbench/powerbench.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".powerbench", "powerbench.yaml"), nil
}

// Load reads the config at path, creating it with defaults first if it does
// not exist. An empty path means DefaultPath().
//
// Description:
//
//	The file is decoded over DefaultConfig(), so a partial file only
//	overrides the keys it names. "~" in export and logging paths is
//	expanded.
//
// Outputs:
//
//	Config - The validated configuration.
//	bool - True when the file was created by this call.
//	error - Read, parse or validation failure.
func Load(path string) (Config, bool, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, false, err
		}
		path = p
	}

	created := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return Config{}, false, err
		}
		created = true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, false, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, created, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, created, nil
}

// Parse decodes yaml over the defaults, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()
	cfg.Export.Dir = logging.ExpandPath(cfg.Export.Dir)
	cfg.Export.ArchivePath = logging.ExpandPath(cfg.Export.ArchivePath)
	cfg.Logging.Dir = logging.ExpandPath(cfg.Logging.Dir)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
