// Copyright 2020-2021 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads the engine's startup environment: canvas size,
// Art-Net and delta-encoding defaults, preview quality, plugin search
// paths and frame-source defaults.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// PreviewQuality is a named JPEG quality preset.
type PreviewQuality string

// Preview quality presets.
const (
	PreviewLow    PreviewQuality = "low"
	PreviewMedium PreviewQuality = "medium"
	PreviewHigh   PreviewQuality = "high"
)

// JPEGQuality maps a preset to its encoder quality value.
func (q PreviewQuality) JPEGQuality() int {
	switch q {
	case PreviewLow:
		return 60
	case PreviewHigh:
		return 90
	default:
		return 80
	}
}

// ArtNetDefaults hold the Art-Net settings read at startup. TargetIP and
// the delta fields are passed to each player's Art-Net sender;
// StartUniverse is validated but, like Broadcast, not applied to the
// sender.
type ArtNetDefaults struct {
	TargetIP       string `yaml:"targetIP"`
	StartUniverse  int    `yaml:"startUniverse"`
	Broadcast      bool   `yaml:"broadcast"`
	DeltaEnabled   bool   `yaml:"deltaEnabled"`
	DeltaThreshold int    `yaml:"deltaThreshold"`
	FullFrameEvery int    `yaml:"fullFrameEvery"`
}

// PreviewDefaults configure the preview streamer.
type PreviewDefaults struct {
	Quality       PreviewQuality `yaml:"quality"`
	CapFPS        int            `yaml:"capFps"`
	BasePerClient int            `yaml:"basePerClient"`
}

// FrameSourceDefaults are applied to newly created frame sources.
type FrameSourceDefaults struct {
	FFmpegBin string `yaml:"ffmpegBin"`
}

// Env stores engine-wide configuration loaded once at startup.
type Env struct {
	Port      string `yaml:"port"`
	ConfigDir string `yaml:"-"`

	CanvasWidth  int `yaml:"canvasWidth"`
	CanvasHeight int `yaml:"canvasHeight"`

	PluginPaths []string `yaml:"pluginPaths"`

	ArtNet       ArtNetDefaults      `yaml:"artnet"`
	Preview      PreviewDefaults     `yaml:"preview"`
	FrameSources FrameSourceDefaults `yaml:"frameSources"`

	SnapshotPath string `yaml:"snapshotPath"`
}

// NewEnv parses envYAML and fills in defaults for anything the
// document leaves unset.
func NewEnv(envPath string, envYAML []byte) (*Env, error) {
	var env Env

	if err := yaml.Unmarshal(envYAML, &env); err != nil {
		return nil, fmt.Errorf("could not unmarshal env.yaml: %w", err)
	}

	env.ConfigDir = filepath.Dir(envPath)

	if env.Port == "" {
		env.Port = "2021"
	}
	if env.CanvasWidth == 0 {
		env.CanvasWidth = 64
	}
	if env.CanvasHeight == 0 {
		env.CanvasHeight = 64
	}
	if env.FrameSources.FFmpegBin == "" {
		env.FrameSources.FFmpegBin = "/usr/bin/ffmpeg"
	}
	if len(env.PluginPaths) == 0 {
		env.PluginPaths = []string{filepath.Join(env.ConfigDir, "plugins")}
	}

	if env.ArtNet.StartUniverse < 0 {
		return nil, fmt.Errorf("artnet.startUniverse must be >= 0")
	}
	if env.ArtNet.DeltaThreshold == 0 {
		env.ArtNet.DeltaThreshold = 8
	}
	if env.ArtNet.FullFrameEvery == 0 {
		env.ArtNet.FullFrameEvery = 30
	}

	if env.Preview.Quality == "" {
		env.Preview.Quality = PreviewMedium
	}
	if env.Preview.CapFPS == 0 {
		env.Preview.CapFPS = 30
	}
	if env.Preview.BasePerClient == 0 {
		env.Preview.BasePerClient = 10
	}

	if env.SnapshotPath == "" {
		env.SnapshotPath = filepath.Join(env.ConfigDir, "snapshot.db")
	}

	return &env, nil
}

// LoadEnv reads and parses the environment document at path.
func LoadEnv(path string) (*Env, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read env.yaml: %w", err)
	}
	return NewEnv(path, data)
}

// PrepareEnvironment creates directories the engine expects to exist.
func (env *Env) PrepareEnvironment() error {
	for _, p := range env.PluginPaths {
		if err := os.MkdirAll(p, 0o700); err != nil && !os.IsExist(err) {
			return fmt.Errorf("could not create plugin directory: %v: %w", p, err)
		}
	}
	return nil
}
