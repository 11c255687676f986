package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smokestack-project/smokestack/pkg/models"
)

// Snapshot is the persisted form of the store: a single JSON document
// written atomically on every commit and loaded at startup.
type Snapshot struct {
	Counter    uint64                       `json:"counter"`
	Operations map[uint64]*models.Operation `json:"operations"`
	Components map[string]*models.Component `json:"components"`
	Tags       map[string]*models.Tag       `json:"tags"`
	Users      map[string]*models.User      `json:"users"`
	Groups     map[string]*models.Group     `json:"groups"`
	Sinks      map[string]*models.SystemSink `json:"system_sinks"`
}

// Snapshot captures a consistent copy of the full store state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Counter:    s.counter,
		Operations: make(map[uint64]*models.Operation, len(s.operations)),
		Components: make(map[string]*models.Component, len(s.components)),
		Tags:       make(map[string]*models.Tag, len(s.tags)),
		Users:      make(map[string]*models.User, len(s.users)),
		Groups:     make(map[string]*models.Group, len(s.groups)),
		Sinks:      make(map[string]*models.SystemSink, len(s.sinks)),
	}
	for id, op := range s.operations {
		snap.Operations[id] = op.Clone()
	}
	for name, c := range s.components {
		snap.Components[name] = c.Clone()
	}
	for name, t := range s.tags {
		snap.Tags[name] = t.Clone()
	}
	for name, u := range s.users {
		snap.Users[name] = u.Clone()
	}
	for name, g := range s.groups {
		snap.Groups[name] = g.Clone()
	}
	for id, sk := range s.sinks {
		snap.Sinks[id] = sk.Clone()
	}
	return snap
}

// FromSnapshot builds a store from a loaded snapshot and rebuilds all
// derived indexes.
func FromSnapshot(snap *Snapshot) *Store {
	s := New()
	if snap == nil {
		return s
	}
	if snap.Counter > s.counter {
		s.counter = snap.Counter
	}
	for id, op := range snap.Operations {
		s.operations[id] = op.Clone()
		// The counter must stay ahead of every persisted id even if the
		// snapshot's counter field is stale.
		if id >= s.counter {
			s.counter = id + 1
		}
	}
	for name, c := range snap.Components {
		s.components[name] = c.Clone()
	}
	for name, t := range snap.Tags {
		s.tags[name] = t.Clone()
	}
	for name, u := range snap.Users {
		s.users[name] = u.Clone()
	}
	for name, g := range snap.Groups {
		s.groups[name] = g.Clone()
	}
	for id, sk := range snap.Sinks {
		s.sinks[id] = sk.Clone()
	}
	s.rebuild()
	return s
}

// WriteSnapshot serializes the snapshot to a temp file in the target
// directory and renames it into place, so readers never observe a partial
// document.
func WriteSnapshot(path string, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot document. A missing file yields an empty
// snapshot, not an error.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return &snap, nil
}
