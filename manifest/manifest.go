// Package manifest handles passerine.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a passerine.toml project configuration.
type Manifest struct {
	Project Project  `toml:"project"`
	Source  Source   `toml:"source"`
	VM      VMConfig `toml:"vm"`
	Cache   Cache    `toml:"cache"`

	// Dir is the directory containing the passerine.toml file (set at
	// load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Entry string   `toml:"entry"`
	Dirs  []string `toml:"dirs"`
}

// VMConfig bounds the virtual machine. A zero Fuel means no opcode
// budget; a zero MaxFrames keeps the VM default.
type VMConfig struct {
	MaxFrames int   `toml:"max-frames"`
	Fuel      int64 `toml:"fuel"`
}

// Cache configures the compiled-bytecode cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the manifest used when no passerine.toml exists.
func Default() *Manifest {
	return &Manifest{
		Project: Project{Name: "main"},
		Source:  Source{Entry: "main.pn"},
		Cache:   Cache{Path: ".passerine-cache.db"},
	}
}

// Load parses a passerine.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "passerine.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	m.Dir = dir
	return m, nil
}

// LoadOrDefault loads the manifest if present and falls back to the
// defaults otherwise.
func LoadOrDefault(dir string) *Manifest {
	m, err := Load(dir)
	if err != nil {
		m = Default()
		m.Dir = dir
	}
	return m
}

// EntryPath returns the absolute path of the entry source file.
func (m *Manifest) EntryPath() string {
	if filepath.IsAbs(m.Source.Entry) {
		return m.Source.Entry
	}
	return filepath.Join(m.Dir, m.Source.Entry)
}

// CachePath returns the absolute path of the cache database.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}
