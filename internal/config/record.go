package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"enginectl/internal/common/fsutil"
)

// Record is the configuration shared with other front ends. It is read at
// engine start for host, port and data folder and rewritten after a
// successful start.
type Record struct {
	DataFolderPath string `yaml:"dataFolderPath"`
	EngineHost     string `yaml:"engineHost"`
	EnginePort     int    `yaml:"enginePort"`
	Initialized    bool   `yaml:"initialized"`
}

// Data folder layout.
const (
	EnginesFolder = "engines"
	ModelsFolder  = "models"
)

// DefaultRecord derives a record from the service config.
func DefaultRecord(c Config) Record {
	c = c.WithDefaults()
	dir, err := fsutil.ExpandHome(c.DataDir)
	if err != nil {
		dir = c.DataDir
	}
	return Record{DataFolderPath: dir, EngineHost: c.EngineHost, EnginePort: c.EnginePort}
}

// EnginesDir is {dataFolderPath}/engines.
func (r Record) EnginesDir() string { return filepath.Join(r.DataFolderPath, EnginesFolder) }

// ReadRecord loads the record at path, filling unset fields from def. A
// missing file is created from def along with the data folder layout. A file
// that cannot be parsed is replaced with def; the parse error is returned
// alongside the usable record so callers can warn about it.
func ReadRecord(path string, def Record) (Record, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return def, err
	}
	b, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		if err := ensureLayout(def.DataFolderPath); err != nil {
			return def, err
		}
		return def, WriteRecord(p, def)
	}
	if err != nil {
		return def, err
	}
	var rec Record
	if uerr := yaml.Unmarshal(b, &rec); uerr != nil {
		if err := ensureLayout(def.DataFolderPath); err != nil {
			return def, err
		}
		if err := WriteRecord(p, def); err != nil {
			return def, err
		}
		return def, fmt.Errorf("parse %s, using defaults: %w", p, uerr)
	}
	if rec.DataFolderPath == "" {
		rec.DataFolderPath = def.DataFolderPath
	}
	if rec.EngineHost == "" {
		rec.EngineHost = def.EngineHost
	}
	if rec.EnginePort <= 0 {
		rec.EnginePort = def.EnginePort
	}
	return rec, nil
}

// WriteRecord stores rec as YAML at path.
func WriteRecord(path string, rec Record) error {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return err
	}
	b, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o644)
}

func ensureLayout(dataDir string) error {
	if dataDir == "" {
		return fmt.Errorf("empty data folder path")
	}
	for _, sub := range []string{"", ModelsFolder, EnginesFolder} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}
