// Frontline Perception System
// Copyright (C) 2020-2025 TurbineOne LLC
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads configuration from the environment and a YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// NoConfigError indicates that we couldn't find a config file.
// This is usually OK and should be treated as a warning.
type NoConfigError struct {
	Path string
}

func (e *NoConfigError) Error() string {
	return "cannot find config file [" + e.Path + "], continuing with defaults"
}

// parseFile parses the config file at 'path' and overwrites defaults in 'out'.
func parseFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &NoConfigError{path}
		}

		return fmt.Errorf("failed to open config file [%s]: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // Don't care about error

	b, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file [%s]: %w", path, err)
	}

	err = yaml.Unmarshal(b, out)
	if err != nil {
		return fmt.Errorf("failed to parse config file [%s]: %w", path, err)
	}

	return nil
}

// parseEnv parses the environment and overwrites defaults in 'out'.
func parseEnv(envPrefix string, out interface{}) error {
	envErr := env.Parse(out, env.Options{Prefix: envPrefix})
	if envErr != nil {
		return fmt.Errorf("config failed to parse environment: %w", envErr)
	}

	return nil
}

// Init initializes 'out' based on a config file and the environment.
// First it parses the environment variables. Then the YAML config file,
// overriding anything from the environment.
//
// The 'envPrefix' is prefixed to the names of any environment variables
// that we look for, so e.g., if 'envPrefix' is "APP_" and there's a struct
// tag saying $HTTP_PORT, the result will come from $APP_HTTP_PORT.
//
// A missing config file is reported as *NoConfigError after the
// environment has been applied, so callers can carry on.
func Init(path string, envPrefix string, out interface{}) error {
	// First, we parse the environment variables.
	if err := parseEnv(envPrefix, out); err != nil {
		return err
	}

	// Now we open, read, and parse the contents of the config file.
	return parseFile(path, out)
}

// Marshal renders 'in' as a YAML config file.
func Marshal(in interface{}) ([]byte, error) {
	b, err := yaml.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	return b, nil
}

// Setting describes one configurable field.
type Setting struct {
	Key string // Dotted YAML path.
	Env string // Environment variable, with prefix. Empty if none.
	Doc string
}

// Settings lists the fields of the config struct 'in' that have a YAML
// key, descending into nested structs.
func Settings(envPrefix string, in interface{}) []Setting {
	t := reflect.TypeOf(in)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return settings(envPrefix, "", t)
}

func settings(envPrefix, keyPrefix string, t reflect.Type) []Setting {
	var out []Setting

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		key, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if key == "" || key == "-" {
			continue
		}

		key = keyPrefix + key

		if field.Type.Kind() == reflect.Struct && field.Tag.Get("env") == "" && field.Type.String() != "time.Time" {
			out = append(out, settings(envPrefix, key+".", field.Type)...)

			continue
		}

		s := Setting{Key: key, Doc: field.Tag.Get("doc")}
		if name, _, _ := strings.Cut(field.Tag.Get("env"), ","); name != "" {
			s.Env = envPrefix + name
		}

		out = append(out, s)
	}

	return out
}
