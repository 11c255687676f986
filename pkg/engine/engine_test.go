package engine

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smokestack-project/smokestack/pkg/admission"
	"github.com/smokestack-project/smokestack/pkg/events"
	"github.com/smokestack-project/smokestack/pkg/models"
	"github.com/smokestack-project/smokestack/pkg/store"
)

type capturingBus struct {
	mu   sync.Mutex
	sent []delivery
}

type delivery struct {
	ev    events.Event
	users []string
}

func (b *capturingBus) Publish(ev events.Event, users []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, delivery{ev: ev, users: users})
}

func (b *capturingBus) deliveries() []delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]delivery(nil), b.sent...)
}

func (b *capturingBus) forUser(user string) []events.Event {
	var out []events.Event
	for _, d := range b.deliveries() {
		for _, u := range d.users {
			if u == user {
				out = append(out, d.ev)
			}
		}
	}
	return out
}

type testHarness struct {
	engine *Engine
	store  *store.Store
	bus    *capturingBus
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	dir := t.TempDir()
	st := store.New()
	st.PutComponent(&models.Component{Name: "foo"})
	st.PutComponent(&models.Component{Name: "bar"})
	st.PutTag(&models.Tag{Name: "security"})

	h, err := store.OpenHistory(filepath.Join(dir, "history.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	bus := &capturingBus{}
	eng := New(Options{
		Store:        st,
		History:      h,
		Controller:   admission.New(st, ""),
		Bus:          bus,
		SnapshotPath: filepath.Join(dir, "state.json"),
	})
	return &testHarness{engine: eng, store: st, bus: bus}
}

func draft(components ...string) *models.Operation {
	return &models.Operation{
		Title:      "kernel update",
		Purpose:    "patch the fleet",
		URL:        "https://tickets.example.com/1",
		Components: components,
	}
}

func TestKernelUpdateHappyPath(t *testing.T) {
	h := newHarness(t)

	op := draft("foo")
	op.Tags = []string{"security"}
	created, err := h.engine.CreateOperation("alice", op)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), created.ID)
	assert.Equal(t, models.StatusPlanned, created.Status)
	assert.Equal(t, []string{"alice"}, created.Operators)

	started, err := h.engine.Transition("alice", 1234, models.StatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, started.Status)
	assert.NotNil(t, started.StartsAt)

	done, err := h.engine.Transition("alice", 1234, models.StatusCompleted, "all good")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.NotNil(t, done.EndsAt)

	// Alice was auto-subscribed and sees both status changes in order.
	var changes []events.Event
	for _, ev := range h.bus.forUser("alice") {
		if ev.Kind == events.KindStatusChanged {
			changes = append(changes, ev)
		}
	}
	require.Len(t, changes, 2)
	assert.Equal(t, models.StatusInProgress, changes[0].To)
	assert.Equal(t, models.StatusCompleted, changes[1].To)
}

func TestDependencyBlocking(t *testing.T) {
	h := newHarness(t)

	dep, err := h.engine.CreateOperation("alice", draft("foo", "bar"))
	require.NoError(t, err)
	_, err = h.engine.Transition("alice", dep.ID, models.StatusInProgress, "")
	require.NoError(t, err)

	blocked := draft("foo", "bar")
	blocked.DependsOn = []uint64{dep.ID}
	op, err := h.engine.CreateOperation("alice", blocked)
	require.NoError(t, err)

	_, err = h.engine.Transition("alice", op.ID, models.StatusInProgress, "")
	var denial *admission.Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, admission.KindDependencyPending, denial.Kind)
	assert.Equal(t, dep.ID, denial.Detail["dependency"])

	_, err = h.engine.Transition("alice", dep.ID, models.StatusCompleted, "")
	require.NoError(t, err)
	_, err = h.engine.Transition("alice", op.ID, models.StatusInProgress, "")
	assert.NoError(t, err)
}

func TestLockConflict(t *testing.T) {
	h := newHarness(t)

	locker := draft("foo", "bar")
	locker.Locks = []string{"bar"}
	first, err := h.engine.CreateOperation("alice", locker)
	require.NoError(t, err)
	_, err = h.engine.Transition("alice", first.ID, models.StatusInProgress, "")
	require.NoError(t, err)

	second, err := h.engine.CreateOperation("alice", draft("foo", "bar"))
	require.NoError(t, err)

	_, err = h.engine.Transition("alice", second.ID, models.StatusInProgress, "")
	var denial *admission.Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, admission.KindLockConflict, denial.Kind)
	assert.Equal(t, first.ID, denial.Detail["op"])
	assert.Equal(t, "bar", denial.Detail["component"])

	_, err = h.engine.Transition("alice", first.ID, models.StatusCompleted, "")
	require.NoError(t, err)
	_, err = h.engine.Transition("alice", second.ID, models.StatusInProgress, "")
	assert.NoError(t, err)
}

func TestApprovalQuorum(t *testing.T) {
	h := newHarness(t)
	h.store.PutGroup(&models.Group{Name: "sre", Members: []string{"alice", "bob"}})
	h.store.PutComponent(&models.Component{
		Name: "foo", RequiresApprovalBy: "sre", RequiredApprovals: 2,
	})

	op, err := h.engine.CreateOperation("charlie", draft("foo"))
	require.NoError(t, err)

	_, err = h.engine.Transition("charlie", op.ID, models.StatusInProgress, "")
	var denial *admission.Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, admission.KindNeedsApproval, denial.Kind)
	assert.Equal(t, 0, denial.Detail["have"])
	assert.Equal(t, 2, denial.Detail["need"])

	_, err = h.engine.Approve("alice", op.ID)
	require.NoError(t, err)
	_, err = h.engine.Approve("bob", op.ID)
	require.NoError(t, err)

	_, err = h.engine.Transition("charlie", op.ID, models.StatusInProgress, "")
	require.NoError(t, err)

	// A third approve by alice is a no-op and emits no event.
	before := len(h.bus.deliveries())
	again, err := h.engine.Approve("alice", op.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, again.ApprovedBy)
	assert.Equal(t, before, len(h.bus.deliveries()))
}

func TestScheduleVersusDependency(t *testing.T) {
	h := newHarness(t)

	end := time.Date(2026, 9, 1, 17, 0, 0, 0, time.UTC)
	dep := draft("foo")
	dep.EndsAt = &end
	first, err := h.engine.CreateOperation("alice", dep)
	require.NoError(t, err)

	second, err := h.engine.CreateOperation("alice", draft("bar"))
	require.NoError(t, err)

	edit := second.Clone()
	start := time.Date(2026, 9, 1, 16, 0, 0, 0, time.UTC)
	stop := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	edit.StartsAt, edit.EndsAt = &start, &stop
	edit.DependsOn = []uint64{first.ID}

	_, err = h.engine.EditOperation("alice", edit)
	var denial *admission.Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, admission.KindScheduleConflict, denial.Kind)
}

func TestSubscriptionFanOut(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Subscribe("alice", models.Selector{Component: "foo"})
	require.NoError(t, err)

	op, err := h.engine.CreateOperation("bob", draft("foo"))
	require.NoError(t, err)
	_, err = h.engine.Transition("bob", op.ID, models.StatusInProgress, "")
	require.NoError(t, err)

	got := h.bus.forUser("alice")
	require.Len(t, got, 2)
	assert.Equal(t, events.KindCreated, got[0].Kind)
	assert.Equal(t, events.KindStatusChanged, got[1].Kind)
	assert.Equal(t, models.StatusPlanned, got[1].From)
	assert.Equal(t, models.StatusInProgress, got[1].To)
}

func TestCancelLeavesOthersUnchanged(t *testing.T) {
	h := newHarness(t)

	locker := draft("foo")
	locker.Locks = []string{"foo"}
	first, err := h.engine.CreateOperation("alice", locker)
	require.NoError(t, err)
	_, err = h.engine.Transition("alice", first.ID, models.StatusInProgress, "")
	require.NoError(t, err)

	second, err := h.engine.CreateOperation("alice", draft("bar"))
	require.NoError(t, err)
	_, err = h.engine.Transition("alice", second.ID, models.StatusCanceled, "scope changed")
	require.NoError(t, err)

	// Canceling second did not disturb first's lock.
	holder, ok := h.store.ActiveLockHolder("foo")
	require.True(t, ok)
	assert.Equal(t, first.ID, holder)

	// Canceled from planned stamps no end time.
	got, _ := h.store.Operation(second.ID)
	assert.Nil(t, got.EndsAt)
}

func TestEditPreservesStatusAndApprovals(t *testing.T) {
	h := newHarness(t)
	h.store.PutGroup(&models.Group{Name: "sre", Members: []string{"bob"}})

	op, err := h.engine.CreateOperation("alice", draft("foo"))
	require.NoError(t, err)
	_, err = h.engine.Approve("bob", op.ID)
	require.NoError(t, err)

	edit := op.Clone()
	edit.Title = "kernel update, round two"
	edit.Status = models.StatusCompleted // ignored
	edit.ApprovedBy = nil                // ignored
	got, err := h.engine.EditOperation("alice", edit)
	require.NoError(t, err)
	assert.Equal(t, "kernel update, round two", got.Title)
	assert.Equal(t, models.StatusPlanned, got.Status)
	assert.Equal(t, []string{"bob"}, got.ApprovedBy)
}

func TestEditByStrangerDenied(t *testing.T) {
	h := newHarness(t)

	op, err := h.engine.CreateOperation("alice", draft("foo"))
	require.NoError(t, err)

	edit := op.Clone()
	edit.Title = "hijacked"
	_, err = h.engine.EditOperation("mallory", edit)
	var denial *admission.Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, admission.KindUnauthorized, denial.Kind)
}

func TestSetApprovalsReplacesWholesale(t *testing.T) {
	h := newHarness(t)

	op, err := h.engine.CreateOperation("alice", draft("foo"))
	require.NoError(t, err)
	_, err = h.engine.Approve("bob", op.ID)
	require.NoError(t, err)

	got, err := h.engine.SetApprovals("sync-bot", op.ID, []string{"carol", "dave"})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "dave"}, got.ApprovedBy)
}

func TestRegistryDeletionGuards(t *testing.T) {
	h := newHarness(t)

	op, err := h.engine.CreateOperation("alice", draft("foo"))
	require.NoError(t, err)

	err = h.engine.DeleteComponent("alice", "foo")
	var denial *admission.Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, admission.KindConflict, denial.Kind)

	_, err = h.engine.Transition("alice", op.ID, models.StatusCanceled, "")
	require.NoError(t, err)
	assert.NoError(t, h.engine.DeleteComponent("alice", "foo"))
}

func TestUnknownActorsAreRecorded(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.CreateOperation("newcomer", draft("foo"))
	require.NoError(t, err)

	u, ok := h.store.User("newcomer")
	require.True(t, ok)
	assert.Equal(t, models.UserKindHuman, u.Kind)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	h := newHarness(t)

	subs, err := h.engine.Subscribe("alice", models.Selector{Component: "foo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, subs.Components)

	subs, err = h.engine.Subscribe("alice", models.Selector{Component: "foo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, subs.Components)

	subs, err = h.engine.Unsubscribe("alice", models.Selector{Component: "foo"})
	require.NoError(t, err)
	assert.Empty(t, subs.Components)
}

func TestTransitionJournalFailureLeavesStoreUnchanged(t *testing.T) {
	dir := t.TempDir()
	st := store.New()
	st.PutComponent(&models.Component{Name: "foo"})

	h, err := store.OpenHistory(filepath.Join(dir, "history.jsonl"))
	require.NoError(t, err)
	eng := New(Options{
		Store:        st,
		History:      h,
		Controller:   admission.New(st, ""),
		SnapshotPath: filepath.Join(dir, "state.json"),
	})

	created, err := eng.CreateOperation("alice", draft("foo"))
	require.NoError(t, err)

	require.NoError(t, h.Close())

	_, err = eng.Transition("alice", created.ID, models.StatusInProgress, "")
	require.Error(t, err)

	// The store still shows the last journaled state; no half-committed
	// status is readable and further writes are refused.
	got, ok := st.Operation(created.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusPlanned, got.Status)
	assert.Nil(t, got.StartsAt)
	assert.Empty(t, h.Query(store.HistoryFilter{OpID: &created.ID}))
	assert.True(t, eng.Degraded())

	_, err = eng.Transition("alice", created.ID, models.StatusInProgress, "")
	require.Error(t, err)
}

func TestEditOfActiveOperationRechecksLocks(t *testing.T) {
	h := newHarness(t)

	locker, err := h.engine.CreateOperation("alice", draft("foo"))
	require.NoError(t, err)
	edit := locker.Clone()
	edit.Locks = []string{"foo"}
	_, err = h.engine.EditOperation("alice", edit)
	require.NoError(t, err)
	_, err = h.engine.Transition("alice", locker.ID, models.StatusInProgress, "")
	require.NoError(t, err)

	other, err := h.engine.CreateOperation("alice", draft("bar"))
	require.NoError(t, err)
	_, err = h.engine.Transition("alice", other.ID, models.StatusInProgress, "")
	require.NoError(t, err)

	// Growing the in-flight operation onto the locked component is denied.
	edit, _ = h.store.Operation(other.ID)
	edit.Components = []string{"bar", "foo"}
	_, err = h.engine.EditOperation("alice", edit)
	var denial *admission.Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, admission.KindLockConflict, denial.Kind)
	assert.Equal(t, "foo", denial.Detail["component"])

	got, _ := h.store.Operation(other.ID)
	assert.Equal(t, []string{"bar"}, got.Components)
}

type capturingSinks struct {
	mu      sync.Mutex
	removed []string
}

func (s *capturingSinks) Dispatch(ev events.Event, sinks []*models.SystemSink) {}

func (s *capturingSinks) Remove(sinkID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, sinkID)
}

func TestUpsertSinkRestartsDeliveryWorker(t *testing.T) {
	dir := t.TempDir()
	st := store.New()
	st.PutComponent(&models.Component{Name: "foo"})

	h, err := store.OpenHistory(filepath.Join(dir, "history.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	sinks := &capturingSinks{}
	eng := New(Options{
		Store:        st,
		History:      h,
		Controller:   admission.New(st, ""),
		Sinks:        sinks,
		SnapshotPath: filepath.Join(dir, "state.json"),
	})

	sink, err := eng.UpsertSink("admin", &models.SystemSink{
		Selector: models.Selector{Component: "foo"},
		Target:   "https://hooks.example.com/a",
	})
	require.NoError(t, err)
	assert.Empty(t, sinks.removed)

	// Reconfiguring the sink stops its worker so the next delivery uses the
	// new target.
	updated := sink.Clone()
	updated.Target = "https://hooks.example.com/b"
	_, err = eng.UpsertSink("admin", updated)
	require.NoError(t, err)
	assert.Equal(t, []string{sink.ID}, sinks.removed)
}
