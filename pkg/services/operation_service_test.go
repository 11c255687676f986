package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smokestack-project/smokestack/pkg/admission"
	"github.com/smokestack-project/smokestack/pkg/engine"
	"github.com/smokestack-project/smokestack/pkg/models"
	"github.com/smokestack-project/smokestack/pkg/store"
)

func newOperationService(t *testing.T) (*OperationService, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st := store.New()
	st.PutComponent(&models.Component{Name: "foo"})
	st.PutComponent(&models.Component{Name: "bar"})

	h, err := store.OpenHistory(filepath.Join(dir, "history.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	eng := engine.New(engine.Options{
		Store:        st,
		History:      h,
		Controller:   admission.New(st, ""),
		SnapshotPath: filepath.Join(dir, "state.json"),
	})
	return NewOperationService(eng, st), st
}

func TestOperationServiceCreateAndGet(t *testing.T) {
	svc, _ := newOperationService(t)

	op, err := svc.Create("alice", CreateOperationInput{
		Title:      "rollout",
		Purpose:    "ship it",
		URL:        "https://tickets.example.com/1",
		Components: []string{"foo"},
	})
	require.NoError(t, err)

	got, err := svc.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, "rollout", got.Title)

	_, err = svc.Get(99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOperationServiceEditMergesPartialUpdate(t *testing.T) {
	svc, _ := newOperationService(t)

	op, err := svc.Create("alice", CreateOperationInput{
		Title:      "rollout",
		Purpose:    "ship it",
		URL:        "https://tickets.example.com/1",
		Components: []string{"foo"},
		Tags:       nil,
	})
	require.NoError(t, err)

	title := "rollout, phase two"
	comps := []string{"bar", "foo"}
	got, err := svc.Edit("alice", op.ID, EditOperationInput{
		Title:      &title,
		Components: &comps,
	})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, []string{"bar", "foo"}, got.Components)
	// Untouched fields survive the merge.
	assert.Equal(t, "ship it", got.Purpose)
	assert.Equal(t, []string{"alice"}, got.Operators)

	_, err = svc.Edit("alice", 99, EditOperationInput{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOperationServiceTransitionParsesStatus(t *testing.T) {
	svc, _ := newOperationService(t)

	op, err := svc.Create("alice", CreateOperationInput{
		Title:      "rollout",
		Purpose:    "ship it",
		URL:        "https://tickets.example.com/1",
		Components: []string{"foo"},
	})
	require.NoError(t, err)

	_, err = svc.Transition("alice", op.ID, "warp_speed", "")
	assert.True(t, IsValidationError(err))

	got, err := svc.Transition("alice", op.ID, "in_progress", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
}
