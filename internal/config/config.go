// Package config loads notedb settings from JSONC files and CLI overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"notedb/internal/dbclient"
	"notedb/internal/etl"
	"notedb/internal/storage"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrUnknownBackend     = errors.New("unknown backend")
	ErrDuplicateImport    = errors.New("duplicate import job")
	ErrDataDirEmpty       = errors.New("data_dir must not be empty")
)

// ConfigFileName is the project config file looked up in the working dir.
const ConfigFileName = ".notedb.json"

// Config holds all configuration options.
type Config struct {
	DataDir     string                         `json:"data_dir"`
	Backend     string                         `json:"backend"`
	Debug       bool                           `json:"debug"`
	Imports     []etl.Job                      `json:"imports,omitempty"`
	Connections map[string]dbclient.Connection `json:"connections,omitempty"`

	// Resolved (not serialized)
	DataDirAbs string  `json:"-"`
	Sources    Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string
	Project string
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		DataDir: ".notedb",
		Backend: storage.BackendSQLite,
	}
}

// fileConfig mirrors Config with pointers so unset keys can be told apart
// from zero values.
type fileConfig struct {
	DataDir     *string                        `json:"data_dir"`
	Backend     *string                        `json:"backend"`
	Debug       *bool                          `json:"debug"`
	Imports     []etl.Job                      `json:"imports"`
	Connections map[string]dbclient.Connection `json:"connections"`
}

// LoadInput holds the inputs for Load. Empty overrides leave the file
// values alone.
type LoadInput struct {
	WorkDir    string // empty means os.Getwd()
	ConfigPath string // --config
	DataDir    string // --data-dir
	Backend    string // --backend
	Debug      *bool  // --debug, nil when the flag was not given
	Env        map[string]string
}

// Load builds the configuration with the following precedence (highest wins):
// defaults, the global user config, .notedb.json in the working dir, the
// explicit --config file, then CLI overrides.
func Load(in LoadInput) (Config, error) {
	workDir := in.WorkDir
	if workDir == "" {
		var err error
		if workDir, err = os.Getwd(); err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if path := globalConfigPath(in.Env); path != "" {
		fc, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}
		if loaded {
			cfg = merge(cfg, fc)
			cfg.Sources.Global = path
		}
	}

	projectPath := filepath.Join(workDir, ConfigFileName)
	mustExist := false
	if in.ConfigPath != "" {
		projectPath = in.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
		mustExist = true
	}
	fc, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}
	if loaded {
		cfg = merge(cfg, fc)
		cfg.Sources.Project = projectPath
	}

	if in.DataDir != "" {
		cfg.DataDir = in.DataDir
	}
	if in.Backend != "" {
		cfg.Backend = in.Backend
	}
	if in.Debug != nil {
		cfg.Debug = *in.Debug
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	if filepath.IsAbs(cfg.DataDir) {
		cfg.DataDirAbs = cfg.DataDir
	} else {
		cfg.DataDirAbs = filepath.Join(workDir, cfg.DataDir)
	}
	return cfg, nil
}

// Validate checks settings that do not need I/O.
func Validate(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrDataDirEmpty
	}
	switch cfg.Backend {
	case storage.BackendSQLite, storage.BackendMarkdown:
	default:
		return fmt.Errorf("%w %q (want %s or %s)", ErrUnknownBackend, cfg.Backend, storage.BackendSQLite, storage.BackendMarkdown)
	}
	seen := make(map[string]bool, len(cfg.Imports))
	for _, j := range cfg.Imports {
		if seen[j.Name] {
			return fmt.Errorf("%w %q", ErrDuplicateImport, j.Name)
		}
		seen[j.Name] = true
	}
	return nil
}

// ConnectionMap returns the configured external connections.
func (c Config) ConnectionMap() map[string]dbclient.Connection {
	if c.Connections == nil {
		return map[string]dbclient.Connection{}
	}
	return c.Connections
}

// globalConfigPath uses $XDG_CONFIG_HOME/notedb/config.json if set,
// otherwise ~/.config/notedb/config.json.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "notedb", "config.json")
	}
	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "notedb", "config.json")
	}
	return ""
}

func loadFile(path string, mustExist bool) (fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !mustExist {
			return fileConfig{}, false, nil
		}
		if os.IsNotExist(err) {
			return fileConfig{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		return fileConfig{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
	}
	fc, err := parse(data)
	if err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}
	return fc, true, nil
}

func parse(data []byte) (fileConfig, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}
	var fc fileConfig
	if err := json.Unmarshal(standardized, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if fc.DataDir != nil && *fc.DataDir == "" {
		return fileConfig{}, ErrDataDirEmpty
	}
	return fc, nil
}

// merge overlays fc on base. Imports from a later file replace earlier
// ones; connections are merged by name.
func merge(base Config, fc fileConfig) Config {
	if fc.DataDir != nil {
		base.DataDir = *fc.DataDir
	}
	if fc.Backend != nil {
		base.Backend = *fc.Backend
	}
	if fc.Debug != nil {
		base.Debug = *fc.Debug
	}
	if fc.Imports != nil {
		base.Imports = fc.Imports
	}
	if len(fc.Connections) > 0 {
		merged := maps.Clone(base.Connections)
		if merged == nil {
			merged = make(map[string]dbclient.Connection, len(fc.Connections))
		}
		maps.Copy(merged, fc.Connections)
		base.Connections = merged
	}
	return base
}
