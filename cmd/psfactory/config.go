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

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TurbineOne/pixel-shell/pkg/archive"
	"github.com/TurbineOne/pixel-shell/pkg/config"
	"github.com/TurbineOne/pixel-shell/pkg/converter"
	"github.com/TurbineOne/pixel-shell/pkg/ffmpeg"
	"github.com/TurbineOne/pixel-shell/pkg/logger"
	"github.com/TurbineOne/pixel-shell/pkg/service"
)

const (
	configFileName = "config.yaml"
	envPrefix      = "PSFACTORY_"
)

//nolint:gochecknoglobals // Needed for makefile injection.
var (
	// Version is provided by the makefile.
	Version = "v0"
	// Revision is a git tag provided by the makefile.
	Revision = "0"
	// Created is a date provided by the makefile.
	Created = "0000-00-00"
)

// mainConfig is the master config for the executable.
type mainConfig struct { //nolint:govet // Don't care about alignment.
	Logger    logger.Config    `yaml:"logger"`
	Converter converter.Config `yaml:"converter"`
	FFmpeg    ffmpeg.Config    `yaml:"ffmpeg"`
	Builder   archive.Config   `yaml:"builder"`
	Service   service.Config   `yaml:"service"`
}

func defaultConfig() mainConfig {
	return mainConfig{
		Logger:    logger.ConfigDefault(),
		Converter: converter.ConfigDefault(),
		FFmpeg:    ffmpeg.ConfigDefault(),
		Builder:   archive.ConfigDefault(),
		Service:   service.ConfigDefault(),
	}
}

var currentConfig = defaultConfig() //nolint:gochecknoglobals  // Static config

// initConfig initializes the config by calling config.Init() and handling
// the results. May exit the program if there is an error.
func initConfig(path string) {
	err := config.Init(path, envPrefix, &currentConfig)
	if err != nil {
		// A missing config file is not fatal. Anything else is.
		ncError := &config.NoConfigError{}
		if !errors.As(err, &ncError) {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(-1)
		}
	}

	log = logger.New(&currentConfig.Logger)

	binName := filepath.Base(os.Args[0])
	log.Info().Msg(fmt.Sprintf("%s %s rev:%s created:%s", binName, Version, Revision, Created))
	log.Debug().Interface("config", &currentConfig).Msg("effective config")

	// If there was no config file, we log it here.
	if err != nil {
		log.Debug().Msg(err.Error())
	}
}

// runConfig prints the effective config as YAML, followed by the
// environment variables that can set each field.
func runConfig() error {
	b, err := config.Marshal(&currentConfig)
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped.
	}

	fmt.Print(string(b)) //nolint:forbidigo // Command output.

	for _, s := range config.Settings(envPrefix, &currentConfig) {
		fmt.Printf("# %-28s $%-36s %s\n", s.Key, s.Env, s.Doc) //nolint:forbidigo // Command output.
	}

	return nil
}
