package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smokestack-project/smokestack/pkg/models"
)

func newOp(id uint64, status models.Status, components, locks []string) *models.Operation {
	return &models.Operation{
		ID:         id,
		Title:      "op",
		Purpose:    "test",
		URL:        "https://example.com",
		Status:     status,
		Components: components,
		Locks:      locks,
		Operators:  []string{"alice"},
	}
}

func TestAllocateIDMonotonic(t *testing.T) {
	s := New()
	first := s.AllocateID()
	assert.Equal(t, uint64(1234), first)
	assert.Equal(t, uint64(1235), s.AllocateID())
	assert.Equal(t, uint64(1236), s.AllocateID())
}

func TestOperationReadsAreCopies(t *testing.T) {
	s := New()
	s.PutOperation(newOp(1, models.StatusPlanned, []string{"foo"}, nil))

	got, ok := s.Operation(1)
	require.True(t, ok)
	got.Components[0] = "mutated"

	again, _ := s.Operation(1)
	assert.Equal(t, "foo", again.Components[0])
}

func TestActiveLockIndexes(t *testing.T) {
	s := New()
	s.PutOperation(newOp(124, models.StatusInProgress, []string{"bar", "foo"}, []string{"bar"}))

	holder, ok := s.ActiveLockHolder("bar")
	require.True(t, ok)
	assert.Equal(t, uint64(124), holder)

	_, ok = s.ActiveLockHolder("foo")
	assert.False(t, ok)

	assert.Equal(t, []uint64{124}, s.ActiveOpsOnComponent("foo"))
	assert.Equal(t, []uint64{124}, s.ActiveOpsOnComponent("bar"))

	// Completing the operation releases the lock and the active index.
	done := newOp(124, models.StatusCompleted, []string{"bar", "foo"}, []string{"bar"})
	s.PutOperation(done)

	_, ok = s.ActiveLockHolder("bar")
	assert.False(t, ok)
	assert.Empty(t, s.ActiveOpsOnComponent("foo"))
}

func TestDependentsIndex(t *testing.T) {
	s := New()
	s.PutOperation(newOp(124, models.StatusInProgress, []string{"foo"}, nil))

	dep := newOp(126, models.StatusPlanned, []string{"foo"}, nil)
	dep.DependsOn = []uint64{124}
	s.PutOperation(dep)

	assert.Equal(t, []uint64{126}, s.Dependents(124))

	// Dropping the dependency on edit removes the reverse entry.
	edited := dep.Clone()
	edited.DependsOn = nil
	s.PutOperation(edited)
	assert.Empty(t, s.Dependents(124))
}

func TestSubscribersFor(t *testing.T) {
	s := New()
	op := newOp(1234, models.StatusPlanned, []string{"foo"}, nil)
	op.Tags = []string{"security"}
	s.PutOperation(op)

	alice := &models.User{Name: "alice", Kind: models.UserKindHuman}
	alice.Subscriptions.Add(models.Selector{Component: "foo"})
	s.PutUser(alice)

	bob := &models.User{Name: "bob", Kind: models.UserKindHuman}
	id := uint64(1234)
	bob.Subscriptions.Add(models.Selector{Operation: &id})
	bob.Subscriptions.Add(models.Selector{Tag: "security"})
	s.PutUser(bob)

	carol := &models.User{Name: "carol", Kind: models.UserKindHuman}
	carol.Subscriptions.Add(models.Selector{Component: "baz"})
	s.PutUser(carol)

	// bob matches twice but appears once.
	assert.Equal(t, []string{"alice", "bob"}, s.SubscribersFor(op))

	// Unsubscribing updates the index.
	alice.Subscriptions.Remove(models.Selector{Component: "foo"})
	s.PutUser(alice)
	assert.Equal(t, []string{"bob"}, s.SubscribersFor(op))
}

func TestListOperationsFilters(t *testing.T) {
	s := New()

	a := newOp(1, models.StatusCompleted, []string{"foo"}, nil)
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	a.StartsAt, a.EndsAt = &start, &end

	b := newOp(2, models.StatusInProgress, []string{"bar"}, nil)
	b.Tags = []string{"security"}
	b.Operators = []string{"bob"}

	s.PutOperation(a)
	s.PutOperation(b)

	byComponent := s.ListOperations(OperationFilter{Components: []string{"foo"}})
	require.Len(t, byComponent, 1)
	assert.Equal(t, uint64(1), byComponent[0].ID)

	byStatus := s.ListOperations(OperationFilter{Statuses: []models.Status{models.StatusInProgress}})
	require.Len(t, byStatus, 1)
	assert.Equal(t, uint64(2), byStatus[0].ID)

	byTag := s.ListOperations(OperationFilter{Tags: []string{"security"}})
	require.Len(t, byTag, 1)
	assert.Equal(t, uint64(2), byTag[0].ID)

	// Window entirely after op 1's schedule excludes it; op 2 has no
	// schedule and matches any window.
	from := end.Add(time.Hour)
	windowed := s.ListOperations(OperationFilter{From: &from})
	require.Len(t, windowed, 1)
	assert.Equal(t, uint64(2), windowed[0].ID)

	mine := s.ListOperations(OperationFilter{Mine: "bob"})
	require.Len(t, mine, 1)
	assert.Equal(t, uint64(2), mine[0].ID)
}

func TestListOperationsMineIncludesSubscriptions(t *testing.T) {
	s := New()
	op := newOp(5, models.StatusPlanned, []string{"foo"}, nil)
	s.PutOperation(op)

	u := &models.User{Name: "dora", Kind: models.UserKindHuman}
	u.Subscriptions.Add(models.Selector{Component: "foo"})
	s.PutUser(u)

	mine := s.ListOperations(OperationFilter{Mine: "dora"})
	require.Len(t, mine, 1)
	assert.Equal(t, uint64(5), mine[0].ID)
}

func TestInUseChecks(t *testing.T) {
	s := New()
	s.PutComponent(&models.Component{Name: "foo", Description: "d", Owners: []string{"alice"}, RequiresApprovalBy: "sre"})
	s.PutTag(&models.Tag{Name: "security", Description: "d"})
	s.PutGroup(&models.Group{Name: "sre", Members: []string{"alice"}})

	op := newOp(1, models.StatusInProgress, []string{"foo"}, nil)
	op.Tags = []string{"security"}
	s.PutOperation(op)

	assert.True(t, s.ComponentInUse("foo"))
	assert.True(t, s.TagInUse("security"))
	assert.True(t, s.GroupInUse("sre"))
	assert.False(t, s.GroupInUse("other"))

	// Terminal references do not pin entities.
	op.Status = models.StatusCompleted
	s.PutOperation(op)
	assert.False(t, s.ComponentInUse("foo"))
	assert.False(t, s.TagInUse("security"))
}
