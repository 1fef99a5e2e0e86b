package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/ecmavm/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[engine]
max-recursion-depth = 64
stop-frequency = 4
gc-object-limit = -1
strict = true

[cache]
lcache-rows = 256
hashmap-threshold = 8

[snapshot]
store = "units.db"
entry = "boot"

[log]
verbosity = 2
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Engine.MaxRecursionDepth != 64 {
		t.Errorf("max-recursion-depth = %d, want 64", m.Engine.MaxRecursionDepth)
	}
	if m.Engine.StopFrequency != 4 {
		t.Errorf("stop-frequency = %d, want 4", m.Engine.StopFrequency)
	}
	if m.Engine.GCObjectLimit != -1 {
		t.Errorf("gc-object-limit = %d, want -1", m.Engine.GCObjectLimit)
	}
	if !m.Engine.Strict {
		t.Error("strict = false, want true")
	}
	if m.Cache.LCacheRows != 256 || m.Cache.HashmapThreshold != 8 {
		t.Errorf("cache = %+v", m.Cache)
	}
	if m.Snapshot.Entry != "boot" {
		t.Errorf("entry = %q, want boot", m.Snapshot.Entry)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", m.Log.Verbosity)
	}
	if want := filepath.Join(m.Dir, "units.db"); m.StorePath() != want {
		t.Errorf("StorePath = %q, want %q", m.StorePath(), want)
	}

	c := m.VMConfig()
	if c.MaxRecursionDepth != 64 || c.StopFrequency != 4 || c.GCObjectLimit != -1 || !c.Strict {
		t.Errorf("VMConfig engine fields = %+v", c)
	}
	if c.LCacheRows != 256 || c.HashmapThreshold != 8 {
		t.Errorf("VMConfig cache fields = %+v", c)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[engine]\nstrict = true\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		name      string
		got, want int
	}{
		{"max-recursion-depth", m.Engine.MaxRecursionDepth, vm.DefaultMaxRecursionDepth},
		{"stop-frequency", m.Engine.StopFrequency, vm.DefaultStopFrequency},
		{"gc-object-limit", m.Engine.GCObjectLimit, vm.DefaultGCObjectLimit},
		{"lcache-rows", m.Cache.LCacheRows, vm.DefaultLCacheRows},
		{"hashmap-threshold", m.Cache.HashmapThreshold, vm.DefaultHashmapThreshold},
		{"verbosity", m.Log.Verbosity, 0},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
	if m.Snapshot.Store != "snapshots.db" || m.Snapshot.Entry != "main" {
		t.Errorf("snapshot defaults = %+v", m.Snapshot)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[engine\n", "parse error"},
		{"wrong type", "[engine]\nstrict = \"yes\"\n", "parse error"},
		{"negative depth", "[engine]\nmax-recursion-depth = -3\n", "max-recursion-depth"},
		{"negative rows", "[cache]\nlcache-rows = -1\n", "lcache-rows"},
		{"negative verbosity", "[log]\nverbosity = -1\n", "verbosity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("Load succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load succeeded without an ecmavm.toml")
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[snapshot]\nentry = \"found\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Snapshot.Entry != "found" {
		t.Errorf("entry = %q, want found", m.Snapshot.Entry)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no ecmavm.toml exists")
	}
}

func TestDefaultManifest(t *testing.T) {
	m := Default()
	if m.StorePath() != "snapshots.db" {
		t.Errorf("StorePath = %q, want snapshots.db", m.StorePath())
	}
	abs := &Manifest{Dir: "/srv", Snapshot: Snapshot{Store: "/var/lib/units.db"}}
	if abs.StorePath() != "/var/lib/units.db" {
		t.Errorf("absolute StorePath = %q", abs.StorePath())
	}
	if c := m.VMConfig(); c.MaxRecursionDepth != vm.DefaultMaxRecursionDepth {
		t.Errorf("default VMConfig depth = %d", c.MaxRecursionDepth)
	}
}
