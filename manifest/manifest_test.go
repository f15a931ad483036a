package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a nacho.toml
	dir := t.TempDir()
	tomlContent := `
[engine]
baseline-threshold = 5
optimize-threshold = 50
queue-depth = 16
jit = true

[translate]
arch = "managed"
max-block-len = 64

[log]
verbosity = 2
`
	if err := os.WriteFile(filepath.Join(dir, "nacho.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Engine.BaselineThreshold != 5 {
		t.Errorf("baseline-threshold = %d, want 5", m.Engine.BaselineThreshold)
	}
	if m.Engine.OptimizeThreshold != 50 {
		t.Errorf("optimize-threshold = %d, want 50", m.Engine.OptimizeThreshold)
	}
	if m.Engine.QueueDepth != 16 {
		t.Errorf("queue-depth = %d, want 16", m.Engine.QueueDepth)
	}
	if !m.Engine.JIT {
		t.Error("jit = false, want true")
	}
	if m.Translate.Arch != "managed" {
		t.Errorf("arch = %q, want managed", m.Translate.Arch)
	}
	if m.Translate.MaxBlockLen != 64 {
		t.Errorf("max-block-len = %d, want 64", m.Translate.MaxBlockLen)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", m.Log.Verbosity)
	}
	if m.Dir == "" {
		t.Error("Dir not set at load time")
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[log]
verbosity = 1
`
	if err := os.WriteFile(filepath.Join(dir, "nacho.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Unset sections fall back to the defaults.
	if m.Engine.BaselineThreshold != 10 {
		t.Errorf("default baseline-threshold = %d, want 10", m.Engine.BaselineThreshold)
	}
	if m.Translate.Arch != "x64" {
		t.Errorf("default arch = %q, want x64", m.Translate.Arch)
	}
	if m.Log.Verbosity != 1 {
		t.Errorf("verbosity = %d, want 1", m.Log.Verbosity)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		toml string
	}{
		{"zero baseline", "[engine]\nbaseline-threshold = 0\noptimize-threshold = 50\n"},
		{"inverted thresholds", "[engine]\nbaseline-threshold = 50\noptimize-threshold = 10\n"},
		{"bad arch", "[translate]\narch = \"mips\"\n"},
		{"zero block len", "[translate]\nmax-block-len = 0\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "nacho.toml"), []byte(tc.toml), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(dir); err == nil {
				t.Error("Load accepted an invalid manifest")
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := `[translate]
arch = "a64"
`
	if err := os.WriteFile(filepath.Join(dir, "nacho.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Translate.Arch != "a64" {
		t.Errorf("arch = %q, want a64", m.Translate.Arch)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m == nil {
		t.Fatal("expected defaults when no nacho.toml exists")
	}
	if m.Engine.BaselineThreshold != Default().Engine.BaselineThreshold {
		t.Errorf("got %d, want default baseline threshold", m.Engine.BaselineThreshold)
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
}
