// Package manifest handles quill.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a quill.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Source  Source  `toml:"source"`
	Patch   Patch   `toml:"patch"`
	History History `toml:"history"`

	// Dir is the directory containing the quill.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`

	// LogVerbosity raises the log level the way repeated -v flags do.
	LogVerbosity int `toml:"log-verbosity"`
}

// Source configures script file locations.
type Source struct {
	Entry string   `toml:"entry"`
	Watch []string `toml:"watch"`
}

// Patch configures live-patch behavior.
type Patch struct {
	// DropFrames unwinds parked activations of a patched function and
	// restarts them on the new code when safe.
	DropFrames bool `toml:"drop-frames"`

	// RetainOld keeps the pre-edit source as a read-only script.
	RetainOld bool `toml:"retain-old"`

	// RetainSuffix is appended to the script name for retained copies.
	RetainSuffix string `toml:"retain-suffix"`

	// LineDiff disables byte-level chunk refinement and patches on
	// whole-line diff chunks.
	LineDiff bool `toml:"line-diff"`
}

// History configures the script version archive.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load parses a quill.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "quill.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	applyDefaults(&m)
	return &m, nil
}

// FindAndLoad walks up from startDir to find a quill.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", startDir, err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "quill.toml")); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Default returns the configuration used when no quill.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	applyDefaults(m)
	return m
}

func applyDefaults(m *Manifest) {
	if m.Project.Name == "" {
		m.Project.Name = "quill"
	}
	if m.Patch.RetainSuffix == "" {
		m.Patch.RetainSuffix = " (old)"
	}
	if m.History.Path == "" {
		m.History.Path = ":memory:"
	}
}
