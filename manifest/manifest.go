// Package manifest handles ecmavm.toml engine configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/chazu/ecmavm/vm"
	"github.com/tliron/commonlog"
)

// FileName is the name of the configuration file.
const FileName = "ecmavm.toml"

var log = commonlog.GetLogger("ecmavm.manifest")

// Manifest represents an ecmavm.toml configuration.
type Manifest struct {
	Engine   Engine   `toml:"engine"`
	Cache    Cache    `toml:"cache"`
	Snapshot Snapshot `toml:"snapshot"`
	Log      Log      `toml:"log"`

	// Dir is the directory containing the ecmavm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Engine configures the interpreter limits.
type Engine struct {
	MaxRecursionDepth int  `toml:"max-recursion-depth"`
	StopFrequency     int  `toml:"stop-frequency"`
	GCObjectLimit     int  `toml:"gc-object-limit"`
	Strict            bool `toml:"strict"`
}

// Cache configures property lookup caching.
type Cache struct {
	LCacheRows       int `toml:"lcache-rows"`
	HashmapThreshold int `toml:"hashmap-threshold"`
}

// Snapshot configures the snapshot store.
type Snapshot struct {
	Store string `toml:"store"`
	Entry string `toml:"entry"`
}

// Log configures logging.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the manifest used when no ecmavm.toml is found.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Engine.MaxRecursionDepth == 0 {
		m.Engine.MaxRecursionDepth = vm.DefaultMaxRecursionDepth
	}
	if m.Engine.StopFrequency == 0 {
		m.Engine.StopFrequency = vm.DefaultStopFrequency
	}
	if m.Engine.GCObjectLimit == 0 {
		m.Engine.GCObjectLimit = vm.DefaultGCObjectLimit
	}
	if m.Cache.LCacheRows == 0 {
		m.Cache.LCacheRows = vm.DefaultLCacheRows
	}
	if m.Cache.HashmapThreshold == 0 {
		m.Cache.HashmapThreshold = vm.DefaultHashmapThreshold
	}
	if m.Snapshot.Store == "" {
		m.Snapshot.Store = "snapshots.db"
	}
	if m.Snapshot.Entry == "" {
		m.Snapshot.Entry = "main"
	}
}

func (m *Manifest) validate() error {
	if m.Engine.MaxRecursionDepth < 0 {
		return fmt.Errorf("engine.max-recursion-depth must be positive, got %d", m.Engine.MaxRecursionDepth)
	}
	if m.Engine.StopFrequency < 0 {
		return fmt.Errorf("engine.stop-frequency must be positive, got %d", m.Engine.StopFrequency)
	}
	if m.Cache.LCacheRows < 0 {
		return fmt.Errorf("cache.lcache-rows must be positive, got %d", m.Cache.LCacheRows)
	}
	if m.Cache.HashmapThreshold < 0 {
		return fmt.Errorf("cache.hashmap-threshold must be positive, got %d", m.Cache.HashmapThreshold)
	}
	if m.Log.Verbosity < 0 {
		return fmt.Errorf("log.verbosity must not be negative, got %d", m.Log.Verbosity)
	}
	return nil
}

// Load parses an ecmavm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown key %s", path, key)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	log.Debugf("loaded %s", path)
	return &m, nil
}

// FindAndLoad walks up from startDir to find an ecmavm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// VMConfig returns the engine configuration described by the manifest.
// A negative gc-object-limit disables automatic sweeps.
func (m *Manifest) VMConfig() vm.Config {
	return vm.Config{
		MaxRecursionDepth: m.Engine.MaxRecursionDepth,
		StopFrequency:     m.Engine.StopFrequency,
		GCObjectLimit:     m.Engine.GCObjectLimit,
		Strict:            m.Engine.Strict,
		LCacheRows:        m.Cache.LCacheRows,
		HashmapThreshold:  m.Cache.HashmapThreshold,
	}
}

// StorePath returns the snapshot store path, resolved against the manifest
// directory when relative.
func (m *Manifest) StorePath() string {
	if filepath.IsAbs(m.Snapshot.Store) || m.Dir == "" {
		return m.Snapshot.Store
	}
	return filepath.Join(m.Dir, m.Snapshot.Store)
}
