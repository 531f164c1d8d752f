// Package manifest handles tagview.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "tagview.toml"

// Manifest represents a tagview.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Store   StoreConfig  `toml:"store"`
	Reader  ReaderConfig `toml:"reader"`
	TFX     TFXConfig    `toml:"tfx"`
	Loader  LoaderConfig `toml:"loader"`
	Server  ServerConfig `toml:"server"`
	Log     LogConfig    `toml:"log"`

	// Dir is the directory containing the tagview.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// Store backends.
const (
	BackendAuto   = "auto"
	BackendSQLite = "sqlite"
)

// StoreConfig selects where records come from.
type StoreConfig struct {
	// Backend is "auto" (each path picks its own backend) or "sqlite".
	Backend string `toml:"backend"`
	// Paths are package files, record directories or databases. Glob
	// patterns are expanded.
	Paths []string `toml:"paths"`
	// SQLite is the database used by the sqlite backend and written by
	// import.
	SQLite    string `toml:"sqlite"`
	CacheSize int    `toml:"cache_size"`
}

// ReaderConfig configures the tag reader.
type ReaderConfig struct {
	Endian          string `toml:"endian"`
	MaxDepth        int    `toml:"max_depth"`
	StrictResources bool   `toml:"strict_resources"`
	OpaqueWindow    int    `toml:"opaque_window"`
}

// TFXConfig configures bytecode handling.
type TFXConfig struct {
	ProgramCacheSize int `toml:"program_cache_size"`
}

// LoaderConfig configures bulk loads.
type LoaderConfig struct {
	Workers int `toml:"workers"`
}

// ServerConfig configures the inspection server.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Defaults.
const (
	DefaultEndian           = "little"
	DefaultMaxDepth         = 64
	DefaultOpaqueWindow     = 256
	DefaultCacheSize        = 4096
	DefaultProgramCacheSize = 1024
	DefaultServerAddr       = "localhost:8765"
)

// Default returns a manifest with every default applied and no store
// paths.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Store.Backend == "" {
		m.Store.Backend = BackendAuto
	}
	if m.Store.CacheSize == 0 {
		m.Store.CacheSize = DefaultCacheSize
	}
	if m.Reader.Endian == "" {
		m.Reader.Endian = DefaultEndian
	}
	if m.Reader.MaxDepth == 0 {
		m.Reader.MaxDepth = DefaultMaxDepth
	}
	if m.Reader.OpaqueWindow == 0 {
		m.Reader.OpaqueWindow = DefaultOpaqueWindow
	}
	if m.TFX.ProgramCacheSize == 0 {
		m.TFX.ProgramCacheSize = DefaultProgramCacheSize
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultServerAddr
	}
}

// Load parses a tagview.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses and validates the manifest at path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a tagview.toml file,
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

// Path resolves p against the manifest directory. Absolute paths and an
// empty Dir leave p unchanged.
func (m *Manifest) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// LogFile returns the resolved log file path, or "" for stderr.
func (m *Manifest) LogFile() string {
	return m.Path(m.Log.File)
}
