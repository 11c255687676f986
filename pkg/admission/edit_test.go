package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smokestack-project/smokestack/pkg/models"
)

func validOp() *models.Operation {
	return &models.Operation{
		ID:         1234,
		Title:      "rollout",
		Purpose:    "ship it",
		URL:        "https://tickets.example.com/1",
		Status:     models.StatusPlanned,
		Components: []string{"frontend"},
		Operators:  []string{"alice"},
	}
}

func TestValidateOperationActiveEditLockGate(t *testing.T) {
	s := newStore(t)
	c := New(s, "")
	now := time.Now()

	locker := plannedOp(124, "frontend")
	locker.Locks = []string{"frontend"}
	locker.Status = models.StatusInProgress
	s.PutOperation(locker)

	prev := plannedOp(126, "db")
	prev.Status = models.StatusInProgress
	s.PutOperation(prev)

	// Growing an in-flight operation onto a locked component is denied.
	edited := plannedOp(126, "db", "frontend")
	edited.Status = models.StatusInProgress
	d := c.ValidateOperation(edited, prev, now)
	require.NotNil(t, d)
	assert.Equal(t, KindLockConflict, d.Kind)
	assert.Equal(t, uint64(124), d.Detail["op"])
	assert.Equal(t, "frontend", d.Detail["component"])

	// Claiming a lock on a component another active operation works on is
	// denied in the other direction too.
	other := plannedOp(125, "db")
	other.Status = models.StatusInProgress
	s.PutOperation(other)

	edited = plannedOp(126, "db")
	edited.Status = models.StatusInProgress
	edited.Locks = []string{"db"}
	d = c.ValidateOperation(edited, prev, now)
	require.NotNil(t, d)
	assert.Equal(t, KindLockConflict, d.Kind)

	// A footprint-preserving edit of an active operation stays admitted.
	edited = plannedOp(126, "db")
	edited.Status = models.StatusInProgress
	edited.Title = "rollout, phase two"
	assert.Nil(t, c.ValidateOperation(edited, prev, now))
}

func TestValidateOperationNormalizes(t *testing.T) {
	s := newStore(t)
	c := New(s, "")

	op := validOp()
	op.Title = "  rollout  "
	op.Components = []string{" frontend", "db", "frontend "}
	op.Operators = []string{"bob", "alice", "bob"}
	op.Tags = nil

	require.Nil(t, c.ValidateOperation(op, nil, time.Now()))
	assert.Equal(t, "rollout", op.Title)
	assert.Equal(t, []string{"db", "frontend"}, op.Components)
	assert.Equal(t, []string{"alice", "bob"}, op.Operators)
}

func TestValidateOperationBlankFields(t *testing.T) {
	s := newStore(t)
	c := New(s, "")

	op := validOp()
	op.Title = "   "
	d := c.ValidateOperation(op, nil, time.Now())
	require.NotNil(t, d)
	assert.Equal(t, KindInvalidInput, d.Kind)

	op = validOp()
	op.Purpose = ""
	d = c.ValidateOperation(op, nil, time.Now())
	require.NotNil(t, d)
	assert.Equal(t, KindInvalidInput, d.Kind)
}

func TestValidateOperationURLScheme(t *testing.T) {
	s := newStore(t)
	c := New(s, "")

	for _, bad := range []string{"", "ftp://x", "tickets.example.com/1", "javascript:alert(1)"} {
		op := validOp()
		op.URL = bad
		d := c.ValidateOperation(op, nil, time.Now())
		require.NotNil(t, d, "url %q", bad)
		assert.Equal(t, KindInvalidInput, d.Kind)
	}

	op := validOp()
	op.URL = "http://tickets.example.com/1"
	assert.Nil(t, c.ValidateOperation(op, nil, time.Now()))
}

func TestValidateOperationReferences(t *testing.T) {
	s := newStore(t)
	c := New(s, "")

	op := validOp()
	op.Components = nil
	d := c.ValidateOperation(op, nil, time.Now())
	require.NotNil(t, d)
	assert.Equal(t, KindInvalidInput, d.Kind)

	op = validOp()
	op.Components = []string{"ghost"}
	d = c.ValidateOperation(op, nil, time.Now())
	require.NotNil(t, d)
	assert.Equal(t, KindNotFound, d.Kind)

	op = validOp()
	op.Tags = []string{"ghost"}
	d = c.ValidateOperation(op, nil, time.Now())
	require.NotNil(t, d)
	assert.Equal(t, KindNotFound, d.Kind)

	op = validOp()
	op.Operators = []string{"ghost"}
	d = c.ValidateOperation(op, nil, time.Now())
	require.NotNil(t, d)
	assert.Equal(t, KindNotFound, d.Kind)

	op = validOp()
	op.DependsOn = []uint64{999}
	d = c.ValidateOperation(op, nil, time.Now())
	require.NotNil(t, d)
	assert.Equal(t, KindNotFound, d.Kind)
}

func TestValidateOperationLocksSubsetOfComponents(t *testing.T) {
	s := newStore(t)
	c := New(s, "")

	op := validOp()
	op.Locks = []string{"db"}
	d := c.ValidateOperation(op, nil, time.Now())
	require.NotNil(t, d)
	assert.Equal(t, KindInvalidInput, d.Kind)

	op.Components = []string{"frontend", "db"}
	assert.Nil(t, c.ValidateOperation(op, nil, time.Now()))
}

func TestValidateOperationWindow(t *testing.T) {
	s := newStore(t)
	c := New(s, "")

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	op := validOp()
	op.StartsAt, op.EndsAt = &start, &end
	d := c.ValidateOperation(op, nil, time.Now())
	require.NotNil(t, d)
	assert.Equal(t, KindInvalidInput, d.Kind)
}

func TestValidateOperationCycle(t *testing.T) {
	s := newStore(t)
	c := New(s, "")

	a := validOp()
	a.ID = 1234
	s.PutOperation(a)

	b := validOp()
	b.ID = 1235
	b.DependsOn = []uint64{1234}
	s.PutOperation(b)

	// Self dependency.
	edit := a.Clone()
	edit.DependsOn = []uint64{1234}
	d := c.ValidateOperation(edit, a, time.Now())
	require.NotNil(t, d)
	assert.Equal(t, KindCycleDetected, d.Kind)

	// a -> b -> a.
	edit = a.Clone()
	edit.DependsOn = []uint64{1235}
	d = c.ValidateOperation(edit, a, time.Now())
	require.NotNil(t, d)
	assert.Equal(t, KindCycleDetected, d.Kind)
	assert.Equal(t, uint64(1235), d.Detail["dependency"])

	// A diamond is not a cycle.
	cOp := validOp()
	cOp.ID = 1236
	cOp.DependsOn = []uint64{1234}
	s.PutOperation(cOp)

	edit = validOp()
	edit.ID = 1237
	edit.DependsOn = []uint64{1235, 1236}
	assert.Nil(t, c.ValidateOperation(edit, nil, time.Now()))
}

func TestValidateOperationScheduleConflict(t *testing.T) {
	s := newStore(t)
	c := New(s, "")
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	depEnd := now.Add(2 * time.Hour)
	dep := validOp()
	dep.ID = 1234
	dep.EndsAt = &depEnd
	s.PutOperation(dep)

	early := now.Add(time.Hour)
	op := validOp()
	op.ID = 1235
	op.DependsOn = []uint64{1234}
	op.StartsAt = &early

	d := c.ValidateOperation(op, nil, now)
	require.NotNil(t, d)
	assert.Equal(t, KindScheduleConflict, d.Kind)

	late := depEnd.Add(time.Minute)
	op.StartsAt = &late
	assert.Nil(t, c.ValidateOperation(op, nil, now))

	// A dependency running past its scheduled end no longer constrains.
	dep.Status = models.StatusInProgress
	s.PutOperation(dep)
	op.StartsAt = &early
	assert.Nil(t, c.ValidateOperation(op, nil, depEnd.Add(time.Hour)))
}

func TestValidateOperationTerminalEdit(t *testing.T) {
	s := newStore(t)
	c := New(s, "")

	prev := validOp()
	prev.Status = models.StatusCompleted
	s.PutOperation(prev)

	// Annotation-only edits are allowed.
	edit := prev.Clone()
	edit.Annotations = map[string]string{"postmortem": "https://docs.example.com/pm"}
	assert.Nil(t, c.ValidateOperation(edit, prev, time.Now()))

	// Anything else is rejected.
	edit = prev.Clone()
	edit.Title = "renamed"
	d := c.ValidateOperation(edit, prev, time.Now())
	require.NotNil(t, d)
	assert.Equal(t, KindConflict, d.Kind)
}

func TestValidateSelector(t *testing.T) {
	s := newStore(t)
	s.PutTag(&models.Tag{Name: "risky"})
	op := validOp()
	s.PutOperation(op)
	c := New(s, "")

	assert.Nil(t, c.ValidateSelector(models.Selector{Component: "frontend"}))
	assert.Nil(t, c.ValidateSelector(models.Selector{Tag: "risky"}))
	id := uint64(1234)
	assert.Nil(t, c.ValidateSelector(models.Selector{Operation: &id}))

	d := c.ValidateSelector(models.Selector{})
	require.NotNil(t, d)
	assert.Equal(t, KindInvalidInput, d.Kind)

	d = c.ValidateSelector(models.Selector{Component: "frontend", Tag: "risky"})
	require.NotNil(t, d)
	assert.Equal(t, KindInvalidInput, d.Kind)

	d = c.ValidateSelector(models.Selector{Component: "ghost"})
	require.NotNil(t, d)
	assert.Equal(t, KindNotFound, d.Kind)
}
