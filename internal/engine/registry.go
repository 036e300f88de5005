package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"enginectl/pkg/types"
)

// RegistryFile is the registry's file name inside the data dir.
const RegistryFile = "engines.json"

// Registry is the persisted list of engine records, seeded with the known
// engines. An empty path keeps it in memory only.
type Registry struct {
	mu      sync.RWMutex
	saveMu  sync.Mutex // orders snapshot and write of concurrent saves
	path    string
	records []types.EngineRecord
}

// OpenRegistry loads the registry at path. A missing or unreadable file
// yields the seeded defaults; known engines missing from the file are added.
func OpenRegistry(path string) *Registry {
	r := &Registry{path: path, records: knownEngines()}
	if path == "" {
		return r
	}
	f, err := os.Open(path)
	if err != nil {
		return r
	}
	defer f.Close()
	var stored []types.EngineRecord
	if err := json.NewDecoder(f).Decode(&stored); err != nil {
		return r
	}
	for _, s := range stored {
		if i := r.indexLocked(s.Name); i >= 0 {
			r.records[i] = s
		}
	}
	return r
}

// List returns a copy of every record.
func (r *Registry) List() []types.EngineRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.EngineRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Get returns the record for name (the default alias included).
func (r *Registry) Get(name string) (types.EngineRecord, error) {
	canon, _ := Canonical(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(canon); i >= 0 {
		return r.records[i], nil
	}
	return types.EngineRecord{}, ErrEngineNotFound(name)
}

// MarkInstalled flips the installed flag, records version when non-empty and
// persists the registry.
func (r *Registry) MarkInstalled(name, version string) error {
	canon, _ := Canonical(name)
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	r.mu.Lock()
	i := r.indexLocked(canon)
	if i < 0 {
		r.mu.Unlock()
		return ErrEngineNotFound(name)
	}
	r.records[i].Installed = true
	if version != "" {
		r.records[i].Version = version
	}
	snap := make([]types.EngineRecord, len(r.records))
	copy(snap, r.records)
	r.mu.Unlock()
	return r.save(snap)
}

func (r *Registry) indexLocked(name string) int {
	for i, rec := range r.records {
		if rec.Name == name {
			return i
		}
	}
	return -1
}

func (r *Registry) save(records []types.EngineRecord) error {
	if r.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("engine registry: %w", err)
	}
	if err := os.WriteFile(r.path, b, 0o644); err != nil {
		return fmt.Errorf("engine registry: %w", err)
	}
	return nil
}
