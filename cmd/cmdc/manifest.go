package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const noCmdcTomlMessage = "no cmdc.toml found\nplease list the object files explicitly, e.g.:\n  cmdc link a.cmdobj b.cmdobj -o dist"

type projectManifest struct {
	Path   string
	Root   string
	Config projectConfig
}

type projectConfig struct {
	Pack packConfig `toml:"pack"`
	Link linkConfig `toml:"link"`
}

type packConfig struct {
	Name      string `toml:"name"`
	Namespace string `toml:"namespace"`
}

type linkConfig struct {
	Inputs []string `toml:"inputs"`
	Output string   `toml:"output"`
}

func findCmdcToml(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, "cmdc.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadProjectManifest(startDir string) (*projectManifest, bool, error) {
	manifestPath, ok, err := findCmdcToml(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := loadProjectConfig(manifestPath)
	if err != nil {
		return nil, true, err
	}
	return &projectManifest{
		Path:   manifestPath,
		Root:   filepath.Dir(manifestPath),
		Config: cfg,
	}, true, nil
}

func loadProjectConfig(path string) (projectConfig, error) {
	var cfg projectConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return projectConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("pack") {
		return projectConfig{}, fmt.Errorf("%s: missing [pack]", path)
	}
	if !meta.IsDefined("pack", "name") || strings.TrimSpace(cfg.Pack.Name) == "" {
		return projectConfig{}, fmt.Errorf("%s: missing [pack].name", path)
	}
	if !meta.IsDefined("link") {
		return projectConfig{}, fmt.Errorf("%s: missing [link]", path)
	}
	if !meta.IsDefined("link", "inputs") || len(cfg.Link.Inputs) == 0 {
		return projectConfig{}, fmt.Errorf("%s: missing [link].inputs", path)
	}
	return cfg, nil
}

// manifestInputs resolves the manifest's input paths against its root.
func (m *projectManifest) manifestInputs() []string {
	out := make([]string, len(m.Config.Link.Inputs))
	for i, rel := range m.Config.Link.Inputs {
		out[i] = filepath.Join(m.Root, filepath.FromSlash(rel))
	}
	return out
}

// manifestOutput resolves the output directory, defaulting to dist/.
func (m *projectManifest) manifestOutput() string {
	out := strings.TrimSpace(m.Config.Link.Output)
	if out == "" {
		out = "dist"
	}
	return filepath.Join(m.Root, filepath.FromSlash(out))
}

// manifestNamespace falls back to the pack name.
func (m *projectManifest) manifestNamespace() string {
	ns := strings.TrimSpace(m.Config.Pack.Namespace)
	if ns == "" {
		ns = strings.TrimSpace(m.Config.Pack.Name)
	}
	return ns
}
