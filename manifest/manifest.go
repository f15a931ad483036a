// Package manifest handles nacho.toml runtime configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a nacho.toml runtime configuration.
type Manifest struct {
	Engine    Engine    `toml:"engine"`
	Translate Translate `toml:"translate"`
	Log       Log       `toml:"log"`

	// Dir is the directory containing the nacho.toml file (set at load time).
	Dir string `toml:"-"`
}

// Engine tunes tier promotion and the compile queue.
type Engine struct {
	BaselineThreshold uint64 `toml:"baseline-threshold"`
	OptimizeThreshold uint64 `toml:"optimize-threshold"`
	QueueDepth        int    `toml:"queue-depth"`
	JIT               bool   `toml:"jit"`
}

// Translate selects the guest instruction set and block shape.
type Translate struct {
	Arch        string `toml:"arch"`
	MaxBlockLen int    `toml:"max-block-len"`
}

// Log configures diagnostic output.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used when no nacho.toml exists.
func Default() *Manifest {
	return &Manifest{
		Engine: Engine{
			BaselineThreshold: 10,
			OptimizeThreshold: 100,
			QueueDepth:        64,
			JIT:               true,
		},
		Translate: Translate{
			Arch:        "x64",
			MaxBlockLen: 128,
		},
	}
}

// Load parses a nacho.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "nacho.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a nacho.toml file, then
// loads and returns the manifest. Returns the defaults if no manifest
// is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "nacho.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root without finding one.
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks the manifest for values the engine would reject.
func (m *Manifest) Validate() error {
	if m.Engine.BaselineThreshold == 0 {
		return fmt.Errorf("engine.baseline-threshold must be positive")
	}
	if m.Engine.OptimizeThreshold <= m.Engine.BaselineThreshold {
		return fmt.Errorf("engine.optimize-threshold (%d) must exceed engine.baseline-threshold (%d)",
			m.Engine.OptimizeThreshold, m.Engine.BaselineThreshold)
	}
	if m.Engine.QueueDepth < 0 {
		return fmt.Errorf("engine.queue-depth must not be negative")
	}
	if m.Translate.MaxBlockLen <= 0 {
		return fmt.Errorf("translate.max-block-len must be positive")
	}
	switch m.Translate.Arch {
	case "x64", "a64", "managed":
	default:
		return fmt.Errorf("translate.arch must be one of x64, a64, managed; got %q", m.Translate.Arch)
	}
	return nil
}
