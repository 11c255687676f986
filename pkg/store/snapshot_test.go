package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smokestack-project/smokestack/pkg/models"
)

func TestSnapshotRoundTrip(t *testing.T) {
	s := New()
	s.AllocateID()
	s.PutComponent(&models.Component{Name: "foo", Description: "d", Owners: []string{"alice"}})
	s.PutGroup(&models.Group{Name: "sre", Members: []string{"alice", "bob"}})
	s.PutUser(&models.User{Name: "alice", Kind: models.UserKindHuman})
	s.PutSink(&models.SystemSink{ID: "sink-1", Selector: models.Selector{Component: "foo"}, Target: "https://hooks.example.com/x"})

	op := newOp(1234, models.StatusInProgress, []string{"foo"}, []string{"foo"})
	s.PutOperation(op)

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, WriteSnapshot(path, s.Snapshot()))

	snap, err := LoadSnapshot(path)
	require.NoError(t, err)

	restored := FromSnapshot(snap)
	got, ok := restored.Operation(1234)
	require.True(t, ok)
	assert.Equal(t, models.StatusInProgress, got.Status)

	// Indexes are rebuilt from entity state.
	holder, ok := restored.ActiveLockHolder("foo")
	require.True(t, ok)
	assert.Equal(t, uint64(1234), holder)

	// Counter resumes past every persisted id.
	assert.Equal(t, uint64(1235), restored.AllocateID())

	_, ok = restored.Component("foo")
	assert.True(t, ok)
	_, ok = restored.Group("sre")
	assert.True(t, ok)
	_, ok = restored.Sink("sink-1")
	assert.True(t, ok)
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	snap, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	s := FromSnapshot(snap)
	assert.Equal(t, uint64(1234), s.AllocateID())
}

func TestLoadSnapshotRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadSnapshot(path)
	assert.Error(t, err)
}

func TestWriteSnapshotLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, WriteSnapshot(path, New().Snapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}
