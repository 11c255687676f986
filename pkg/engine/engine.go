// Package engine is the single writer of the domain store. Every mutation
// flows through it in the same sequence: admission, history append, store
// update, snapshot write, event publish. Commits are serialized by one
// mutex, so events leave in commit order and reads after a successful write
// observe its effects.
package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smokestack-project/smokestack/pkg/admission"
	"github.com/smokestack-project/smokestack/pkg/events"
	"github.com/smokestack-project/smokestack/pkg/metrics"
	"github.com/smokestack-project/smokestack/pkg/models"
	"github.com/smokestack-project/smokestack/pkg/store"
)

// Publisher receives committed events for fan-out to watchers.
type Publisher interface {
	Publish(ev events.Event, users []string)
}

// SinkDispatcher receives committed events for sink delivery.
type SinkDispatcher interface {
	Dispatch(ev events.Event, sinks []*models.SystemSink)
	Remove(sinkID string)
}

// Engine applies admitted mutations atomically.
type Engine struct {
	mu sync.Mutex

	store        *store.Store
	history      *store.HistoryLog
	ctrl         *admission.Controller
	bus          Publisher
	sinks        SinkDispatcher
	snapshotPath string

	// degraded is set when a snapshot write fails. While set, every write
	// is refused; Recover clears it by re-attempting the snapshot.
	degraded bool

	now func() time.Time
}

// Options configures an Engine.
type Options struct {
	Store        *store.Store
	History      *store.HistoryLog
	Controller   *admission.Controller
	Bus          Publisher
	Sinks        SinkDispatcher
	SnapshotPath string

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New creates an engine. Bus and Sinks may be nil, in which case events are
// not delivered.
func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:        opts.Store,
		history:      opts.History,
		ctrl:         opts.Controller,
		bus:          opts.Bus,
		sinks:        opts.Sinks,
		snapshotPath: opts.SnapshotPath,
		now:          now,
	}
}

// --- Operations ---

// CreateOperation validates and stores a new operation in planned status.
// The actor becomes an operator when none are given, and the actor and all
// operators are subscribed to the new operation.
func (e *Engine) CreateOperation(actor string, op *models.Operation) (*models.Operation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return nil, d
	}
	e.ensureUser(actor)

	op.Status = models.StatusPlanned
	op.ApprovedBy = nil
	if len(op.Operators) == 0 {
		op.Operators = []string{actor}
	}
	if d := e.ctrl.ValidateOperation(op, nil, e.now()); d != nil {
		return nil, e.denied(d)
	}

	op.ID = e.store.AllocateID()
	e.store.PutOperation(op)
	e.autoSubscribe(actor, op, nil)

	if d := e.commitState(); d != nil {
		return nil, d
	}
	committed, _ := e.store.Operation(op.ID)
	e.publish(events.Event{
		Kind:      events.KindCreated,
		Timestamp: e.now(),
		Actor:     actor,
		Operation: committed,
	})
	e.updateStatusGauge()
	slog.Info("Operation created", "op_id", op.ID, "title", op.Title, "actor", actor)
	return committed, nil
}

// EditOperation replaces the mutable fields of an operation. Status and
// approvals are never changed by an edit; approvals carry over even when
// components or tags change.
func (e *Engine) EditOperation(actor string, op *models.Operation) (*models.Operation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return nil, d
	}
	prev, ok := e.store.Operation(op.ID)
	if !ok {
		return nil, e.notFound(op.ID)
	}
	e.ensureUser(actor)

	if d := e.ctrl.AdmitEdit(prev, actor); d != nil {
		return nil, e.denied(d)
	}
	op.Status = prev.Status
	op.ApprovedBy = prev.ApprovedBy
	if d := e.ctrl.ValidateOperation(op, prev, e.now()); d != nil {
		return nil, e.denied(d)
	}

	e.store.PutOperation(op)
	e.autoSubscribe(actor, op, prev)

	if d := e.commitState(); d != nil {
		return nil, d
	}
	committed, _ := e.store.Operation(op.ID)
	e.publish(events.Event{
		Kind:      events.KindEdited,
		Timestamp: e.now(),
		Actor:     actor,
		Operation: committed,
	})
	slog.Info("Operation edited", "op_id", op.ID, "actor", actor)
	return committed, nil
}

// Transition drives the state machine. On success the change is journaled,
// snapshotted, and published as a status_changed event.
func (e *Engine) Transition(actor string, id uint64, to models.Status, note string) (*models.Operation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return nil, d
	}
	op, ok := e.store.Operation(id)
	if !ok {
		return nil, e.notFound(id)
	}
	e.ensureUser(actor)

	now := e.now()
	if d := e.ctrl.AdmitTransition(op, to, actor, now); d != nil {
		return nil, e.denied(d)
	}

	from := op.Status
	if from == models.StatusPlanned && to == models.StatusInProgress {
		if op.StartsAt == nil || op.StartsAt.After(now) {
			op.StartsAt = &now
		}
	}
	if to.Terminal() && from.Active() {
		op.EndsAt = &now
	}
	op.Status = to

	// Journal before the store mutation: a failed append must leave the
	// store unchanged, or reads would serve a status no record explains.
	if _, err := e.history.Append(models.HistoryRecord{
		OpID:       id,
		Timestamp:  now,
		Actor:      actor,
		From:       from,
		To:         to,
		Note:       note,
		Components: op.Components,
		Tags:       op.Tags,
	}); err != nil {
		e.degraded = true
		slog.Error("History append failed, suspending writes", "op_id", id, "error", err)
		return nil, e.internal("history append failed")
	}
	e.store.PutOperation(op)

	if d := e.commitState(); d != nil {
		return nil, d
	}
	committed, _ := e.store.Operation(id)
	e.publish(events.Event{
		Kind:      events.KindStatusChanged,
		Timestamp: now,
		Actor:     actor,
		Operation: committed,
		From:      from,
		To:        to,
		Note:      note,
	})
	metrics.TransitionsTotal.WithLabelValues(string(to)).Inc()
	e.updateStatusGauge()
	slog.Info("Operation transitioned",
		"op_id", id, "from", from, "to", to, "actor", actor)
	return committed, nil
}

// Approve records the actor's approval. Idempotent: approving twice neither
// fails nor emits a second event.
func (e *Engine) Approve(actor string, id uint64) (*models.Operation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return nil, d
	}
	op, ok := e.store.Operation(id)
	if !ok {
		return nil, e.notFound(id)
	}
	if op.IsApprover(actor) {
		return op, nil
	}
	e.ensureUser(actor)

	op.ApprovedBy = append(op.ApprovedBy, actor)
	e.store.PutOperation(op)
	if d := e.commitState(); d != nil {
		return nil, d
	}
	committed, _ := e.store.Operation(id)
	e.publish(events.Event{
		Kind:      events.KindApproved,
		Timestamp: e.now(),
		Actor:     actor,
		Operation: committed,
	})
	slog.Info("Operation approved", "op_id", id, "actor", actor)
	return committed, nil
}

// SetApprovals replaces the approval set wholesale. Used by external
// synchronizers importing approvals from a review source; the replacement
// is journaled with source=external.
func (e *Engine) SetApprovals(actor string, id uint64, approvers []string) (*models.Operation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return nil, d
	}
	op, ok := e.store.Operation(id)
	if !ok {
		return nil, e.notFound(id)
	}
	e.ensureUser(actor)

	cleaned := make([]string, 0, len(approvers))
	for _, a := range approvers {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		e.ensureUser(a)
		cleaned = append(cleaned, a)
	}
	op.ApprovedBy = cleaned

	now := e.now()
	if _, err := e.history.Append(models.HistoryRecord{
		OpID:       id,
		Timestamp:  now,
		Actor:      actor,
		From:       op.Status,
		To:         op.Status,
		Note:       fmt.Sprintf("approvals set to [%s]", strings.Join(cleaned, ", ")),
		Components: op.Components,
		Tags:       op.Tags,
		Source:     "external",
	}); err != nil {
		e.degraded = true
		return nil, e.internal("history append failed")
	}
	e.store.PutOperation(op)
	if d := e.commitState(); d != nil {
		return nil, d
	}
	committed, _ := e.store.Operation(id)
	e.publish(events.Event{
		Kind:      events.KindApproved,
		Timestamp: now,
		Actor:     actor,
		Operation: committed,
	})
	slog.Info("Approvals replaced", "op_id", id, "actor", actor, "count", len(cleaned))
	return committed, nil
}

// Comment records a note on the operation and notifies subscribers. The
// note is journaled so reconnecting clients can replay it.
func (e *Engine) Comment(actor string, id uint64, note string) (*models.Operation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return nil, d
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, e.invalid("comment cannot be blank")
	}
	op, ok := e.store.Operation(id)
	if !ok {
		return nil, e.notFound(id)
	}
	e.ensureUser(actor)

	now := e.now()
	if _, err := e.history.Append(models.HistoryRecord{
		OpID:       id,
		Timestamp:  now,
		Actor:      actor,
		From:       op.Status,
		To:         op.Status,
		Note:       note,
		Components: op.Components,
		Tags:       op.Tags,
		Source:     "comment",
	}); err != nil {
		e.degraded = true
		return nil, e.internal("history append failed")
	}
	if d := e.commitState(); d != nil {
		return nil, d
	}
	e.publish(events.Event{
		Kind:      events.KindCommented,
		Timestamp: now,
		Actor:     actor,
		Operation: op,
		Note:      note,
	})
	return op, nil
}

// --- Subscriptions ---

// Subscribe adds a selector to the user's subscription set. Idempotent.
func (e *Engine) Subscribe(actor string, sel models.Selector) (*models.SubscriptionSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return nil, d
	}
	if d := e.ctrl.ValidateSelector(sel); d != nil {
		return nil, e.denied(d)
	}
	u := e.ensureUser(actor)
	if u.Subscriptions.Add(sel) {
		e.store.PutUser(u)
		if d := e.commitState(); d != nil {
			return nil, d
		}
	}
	subs := u.Subscriptions.Clone()
	return &subs, nil
}

// Unsubscribe removes a selector from the user's subscription set.
func (e *Engine) Unsubscribe(actor string, sel models.Selector) (*models.SubscriptionSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return nil, d
	}
	if err := sel.Validate(); err != nil {
		return nil, e.invalid("%s", err.Error())
	}
	u := e.ensureUser(actor)
	if u.Subscriptions.Remove(sel) {
		e.store.PutUser(u)
		if d := e.commitState(); d != nil {
			return nil, d
		}
	}
	subs := u.Subscriptions.Clone()
	return &subs, nil
}

// --- Registry ---

// UpsertComponent creates or replaces a component.
func (e *Engine) UpsertComponent(actor string, c *models.Component) (*models.Component, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return nil, d
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, e.invalid("component name cannot be blank")
	}
	if d := e.validateQuorum(c.RequiresApprovalBy, c.RequiredApprovals); d != nil {
		return nil, d
	}
	e.ensureUser(actor)
	for _, owner := range c.Owners {
		e.ensureUser(owner)
	}
	e.store.PutComponent(c)
	if d := e.commitState(); d != nil {
		return nil, d
	}
	out, _ := e.store.Component(c.Name)
	return out, nil
}

// DeleteComponent removes a component not referenced by any non-terminal
// operation.
func (e *Engine) DeleteComponent(actor, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return d
	}
	if _, ok := e.store.Component(name); !ok {
		return e.missing("component %s not found", name)
	}
	if e.store.ComponentInUse(name) {
		return e.conflict("component %s is referenced by non-terminal operations", name)
	}
	e.store.DeleteComponent(name)
	return e.commitOrNil()
}

// UpsertTag creates or replaces a tag.
func (e *Engine) UpsertTag(actor string, t *models.Tag) (*models.Tag, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return nil, d
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return nil, e.invalid("tag name cannot be blank")
	}
	if d := e.validateQuorum(t.RequiresApprovalBy, t.RequiredApprovals); d != nil {
		return nil, d
	}
	e.ensureUser(actor)
	e.store.PutTag(t)
	if d := e.commitState(); d != nil {
		return nil, d
	}
	out, _ := e.store.Tag(t.Name)
	return out, nil
}

// DeleteTag removes a tag not carried by any non-terminal operation.
func (e *Engine) DeleteTag(actor, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return d
	}
	if _, ok := e.store.Tag(name); !ok {
		return e.missing("tag %s not found", name)
	}
	if e.store.TagInUse(name) {
		return e.conflict("tag %s is carried by non-terminal operations", name)
	}
	e.store.DeleteTag(name)
	return e.commitOrNil()
}

// UpsertGroup creates or replaces a group. Unknown members are created as
// human users.
func (e *Engine) UpsertGroup(actor string, g *models.Group) (*models.Group, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return nil, d
	}
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return nil, e.invalid("group name cannot be blank")
	}
	e.ensureUser(actor)
	for _, member := range g.Members {
		e.ensureUser(member)
	}
	e.store.PutGroup(g)
	if d := e.commitState(); d != nil {
		return nil, d
	}
	out, _ := e.store.Group(g.Name)
	return out, nil
}

// DeleteGroup removes a group no component or tag names for approvals.
func (e *Engine) DeleteGroup(actor, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return d
	}
	if _, ok := e.store.Group(name); !ok {
		return e.missing("group %s not found", name)
	}
	if e.store.GroupInUse(name) {
		return e.conflict("group %s is an approval source for components or tags", name)
	}
	e.store.DeleteGroup(name)
	return e.commitOrNil()
}

// UpsertUser creates or replaces a user. Existing subscriptions are kept.
func (e *Engine) UpsertUser(actor string, u *models.User) (*models.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return nil, d
	}
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return nil, e.invalid("user name cannot be blank")
	}
	if u.Kind == "" {
		u.Kind = models.UserKindHuman
	}
	if u.Kind != models.UserKindHuman && u.Kind != models.UserKindSystem {
		return nil, e.invalid("unknown user kind %q", u.Kind)
	}
	if existing, ok := e.store.User(u.Name); ok {
		u.Subscriptions = existing.Subscriptions
	}
	e.store.PutUser(u)
	if d := e.commitState(); d != nil {
		return nil, d
	}
	out, _ := e.store.User(u.Name)
	return out, nil
}

// DeleteUser removes a user who operates no non-terminal operation.
func (e *Engine) DeleteUser(actor, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return d
	}
	if _, ok := e.store.User(name); !ok {
		return e.missing("user %s not found", name)
	}
	if e.store.UserInUse(name) {
		return e.conflict("user %s operates non-terminal operations", name)
	}
	e.store.DeleteUser(name)
	return e.commitOrNil()
}

// UpsertSink registers or replaces a system sink. A missing id is generated.
func (e *Engine) UpsertSink(actor string, sk *models.SystemSink) (*models.SystemSink, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return nil, d
	}
	if sk.ID == "" {
		sk.ID = uuid.New().String()
	}
	if strings.TrimSpace(sk.Target) == "" {
		return nil, e.invalid("sink target cannot be blank")
	}
	if d := e.ctrl.ValidateSelector(sk.Selector); d != nil {
		return nil, e.denied(d)
	}
	e.ensureUser(actor)
	_, replacing := e.store.Sink(sk.ID)
	e.store.PutSink(sk)
	if d := e.commitState(); d != nil {
		return nil, d
	}
	// The delivery worker captures the sink record at start. Stop it so the
	// next event spawns a worker with the new target and filter.
	if replacing && e.sinks != nil {
		e.sinks.Remove(sk.ID)
	}
	out, _ := e.store.Sink(sk.ID)
	return out, nil
}

// DeleteSink deregisters a sink and stops its delivery worker.
func (e *Engine) DeleteSink(actor, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.writable(); d != nil {
		return d
	}
	if _, ok := e.store.Sink(id); !ok {
		return e.missing("sink %s not found", id)
	}
	e.store.DeleteSink(id)
	if err := e.commitOrNil(); err != nil {
		return err
	}
	if e.sinks != nil {
		e.sinks.Remove(id)
	}
	return nil
}

// --- Recovery ---

// Degraded reports whether writes are currently refused after a persistence
// failure.
func (e *Engine) Degraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.degraded
}

// Recover re-attempts the snapshot write and resumes accepting writes on
// success.
func (e *Engine) Recover() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.degraded {
		return nil
	}
	if err := store.WriteSnapshot(e.snapshotPath, e.store.Snapshot()); err != nil {
		return err
	}
	e.degraded = false
	slog.Info("Persistence recovered, writes resumed")
	return nil
}

// --- internals ---

// writable rejects writes while the snapshot is failing. Callers hold e.mu.
func (e *Engine) writable() error {
	if e.degraded {
		return &admission.Denial{
			Kind:    admission.KindInternal,
			Message: "state persistence is degraded; writes are suspended",
		}
	}
	return nil
}

// ensureUser returns the named user, creating a human user on first sight.
// Identities are authenticated upstream; the engine only records them.
func (e *Engine) ensureUser(name string) *models.User {
	if u, ok := e.store.User(name); ok {
		return u
	}
	u := &models.User{Name: name, Kind: models.UserKindHuman}
	e.store.PutUser(u)
	return u
}

// autoSubscribe applies the automatic subscription rules after a create or
// edit: the actor and every operator follow the operation itself, and the
// actor follows every newly added dependency.
func (e *Engine) autoSubscribe(actor string, op, prev *models.Operation) {
	e.subscribeUser(actor, models.Selector{Operation: &op.ID})
	for _, operator := range op.Operators {
		e.subscribeUser(operator, models.Selector{Operation: &op.ID})
	}

	known := make(map[uint64]bool)
	if prev != nil {
		for _, dep := range prev.DependsOn {
			known[dep] = true
		}
	}
	for _, dep := range op.DependsOn {
		if !known[dep] {
			id := dep
			e.subscribeUser(actor, models.Selector{Operation: &id})
		}
	}
}

func (e *Engine) subscribeUser(name string, sel models.Selector) {
	u := e.ensureUser(name)
	if u.Subscriptions.Add(sel) {
		e.store.PutUser(u)
	}
}

func (e *Engine) validateQuorum(group string, need int) error {
	if need < 0 {
		return e.invalid("required approvals cannot be negative")
	}
	if need > 0 && group == "" {
		return e.invalid("required approvals demand an approval group")
	}
	if group != "" {
		if _, ok := e.store.Group(group); !ok {
			return e.missing("group %s not found", group)
		}
	}
	return nil
}

// commitState writes the snapshot. A failure flips the engine into the
// degraded state so no further writes are accepted until Recover succeeds.
func (e *Engine) commitState() error {
	if err := store.WriteSnapshot(e.snapshotPath, e.store.Snapshot()); err != nil {
		e.degraded = true
		metrics.SnapshotWritesTotal.WithLabelValues("error").Inc()
		slog.Error("Snapshot write failed, suspending writes",
			"path", e.snapshotPath, "error", err)
		return e.internal("state snapshot failed; writes suspended")
	}
	metrics.SnapshotWritesTotal.WithLabelValues("ok").Inc()
	return nil
}

func (e *Engine) commitOrNil() error {
	if d := e.commitState(); d != nil {
		return d
	}
	return nil
}

func (e *Engine) publish(ev events.Event) {
	if ev.Operation != nil {
		if e.bus != nil {
			e.bus.Publish(ev, e.store.SubscribersFor(ev.Operation))
		}
		if e.sinks != nil {
			e.sinks.Dispatch(ev, e.store.Sinks())
		}
	}
}

func (e *Engine) updateStatusGauge() {
	counts := e.store.StatusCounts()
	for _, st := range []models.Status{
		models.StatusPlanned, models.StatusInProgress, models.StatusPaused,
		models.StatusCompleted, models.StatusAborted, models.StatusCanceled,
	} {
		metrics.OperationsTotal.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}

func (e *Engine) denied(d *admission.Denial) error {
	metrics.AdmissionDenialsTotal.WithLabelValues(string(d.Kind)).Inc()
	return d
}

func (e *Engine) notFound(id uint64) error {
	return e.missing("operation %d not found", id)
}

func (e *Engine) missing(format string, args ...any) error {
	return &admission.Denial{Kind: admission.KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func (e *Engine) invalid(format string, args ...any) error {
	return &admission.Denial{Kind: admission.KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func (e *Engine) conflict(format string, args ...any) error {
	return &admission.Denial{Kind: admission.KindConflict, Message: fmt.Sprintf(format, args...)}
}

func (e *Engine) internal(msg string) error {
	return &admission.Denial{Kind: admission.KindInternal, Message: msg}
}
