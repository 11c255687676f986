// Package store holds the authoritative in-memory state of all entities and
// the secondary indexes derived from it. Reads are served from deep copies
// under a read lock; every mutation goes through the transition engine,
// which is the single writer.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/smokestack-project/smokestack/pkg/models"
)

// initialOperationID is the first id handed out by a fresh store. Ids are
// strictly monotonic and never reused.
const initialOperationID = 1234

// Store is the domain store. The zero value is not usable; construct with
// New or FromSnapshot.
type Store struct {
	mu sync.RWMutex

	counter    uint64
	operations map[uint64]*models.Operation
	components map[string]*models.Component
	tags       map[string]*models.Tag
	users      map[string]*models.User
	groups     map[string]*models.Group
	sinks      map[string]*models.SystemSink

	idx indexes
}

// New returns an empty store with the id counter at its initial value.
func New() *Store {
	s := &Store{
		counter:    initialOperationID,
		operations: make(map[uint64]*models.Operation),
		components: make(map[string]*models.Component),
		tags:       make(map[string]*models.Tag),
		users:      make(map[string]*models.User),
		groups:     make(map[string]*models.Group),
		sinks:      make(map[string]*models.SystemSink),
	}
	s.idx.reset()
	return s
}

// AllocateID returns the next operation id and advances the counter.
func (s *Store) AllocateID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.counter
	s.counter++
	return id
}

// --- Operations ---

// Operation returns a copy of the operation, or false if unknown.
func (s *Store) Operation(id uint64) (*models.Operation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operations[id]
	if !ok {
		return nil, false
	}
	return op.Clone(), true
}

// OperationFilter selects operations for listing. Zero-valued fields do not
// filter. Time bounds match operations whose scheduled window intersects
// [From, To]; unscheduled operations match any window.
type OperationFilter struct {
	Components []string
	Tags       []string
	Statuses   []models.Status
	Operators  []string
	From       *time.Time
	To         *time.Time

	// Mine restricts to operations the named user operates or subscribes to.
	Mine string
}

// ListOperations returns copies of matching operations ordered by id.
func (s *Store) ListOperations(f OperationFilter) []*models.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mineSubs *models.SubscriptionSet
	if f.Mine != "" {
		if u, ok := s.users[f.Mine]; ok {
			mineSubs = &u.Subscriptions
		}
	}

	var out []*models.Operation
	for _, op := range s.operations {
		if !matchesFilter(op, f, mineSubs) {
			continue
		}
		out = append(out, op.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func matchesFilter(op *models.Operation, f OperationFilter, mineSubs *models.SubscriptionSet) bool {
	if len(f.Components) > 0 && !anyOverlap(op.Components, f.Components) {
		return false
	}
	if len(f.Tags) > 0 && !anyOverlap(op.Tags, f.Tags) {
		return false
	}
	if len(f.Operators) > 0 && !anyOverlap(op.Operators, f.Operators) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if op.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && op.EndsAt != nil && op.EndsAt.Before(*f.From) {
		return false
	}
	if f.To != nil && op.StartsAt != nil && op.StartsAt.After(*f.To) {
		return false
	}
	if f.Mine != "" {
		if !op.IsOperator(f.Mine) && (mineSubs == nil || !mineSubs.Matches(op)) {
			return false
		}
	}
	return true
}

func anyOverlap(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// PutOperation stores a copy of the operation and refreshes all derived
// indexes. Callers (the engine) are responsible for admission.
func (s *Store) PutOperation(op *models.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.operations[op.ID]
	clone := op.Clone()
	s.operations[op.ID] = clone
	s.idx.reindexOperation(prev, clone)
}

// --- Components ---

// Component returns a copy of the component, or false if unknown.
func (s *Store) Component(name string) (*models.Component, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.components[name]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Components returns copies of all components ordered by name.
func (s *Store) Components() []*models.Component {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Component, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PutComponent stores a copy of the component.
func (s *Store) PutComponent(c *models.Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components[c.Name] = c.Clone()
}

// DeleteComponent removes the component.
func (s *Store) DeleteComponent(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.components, name)
}

// ComponentInUse reports whether any non-terminal operation references the
// component in its components or locks set.
func (s *Store) ComponentInUse(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.idx.byComponent[name] {
		if !s.operations[id].Status.Terminal() {
			return true
		}
	}
	return false
}

// --- Tags ---

// Tag returns a copy of the tag, or false if unknown.
func (s *Store) Tag(name string) (*models.Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tags[name]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tags returns copies of all tags ordered by name.
func (s *Store) Tags() []*models.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PutTag stores a copy of the tag.
func (s *Store) PutTag(t *models.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[t.Name] = t.Clone()
}

// DeleteTag removes the tag.
func (s *Store) DeleteTag(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tags, name)
}

// TagInUse reports whether any non-terminal operation carries the tag.
func (s *Store) TagInUse(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.idx.byTag[name] {
		if !s.operations[id].Status.Terminal() {
			return true
		}
	}
	return false
}

// --- Users ---

// User returns a copy of the user, or false if unknown.
func (s *Store) User(name string) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[name]
	if !ok {
		return nil, false
	}
	return u.Clone(), true
}

// Users returns copies of all users ordered by name.
func (s *Store) Users() []*models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PutUser stores a copy of the user and refreshes the subscription indexes.
func (s *Store) PutUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := u.Clone()
	s.users[u.Name] = clone
	s.idx.reindexSubscriptions(u.Name, &clone.Subscriptions)
}

// DeleteUser removes the user and their subscription index entries.
func (s *Store) DeleteUser(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, name)
	s.idx.reindexSubscriptions(name, &models.SubscriptionSet{})
}

// UserInUse reports whether the user operates any non-terminal operation.
func (s *Store) UserInUse(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, op := range s.operations {
		if !op.Status.Terminal() && op.IsOperator(name) {
			return true
		}
	}
	return false
}

// --- Groups ---

// Group returns a copy of the group, or false if unknown.
func (s *Store) Group(name string) (*models.Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[name]
	if !ok {
		return nil, false
	}
	return g.Clone(), true
}

// Groups returns copies of all groups ordered by name.
func (s *Store) Groups() []*models.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PutGroup stores a copy of the group.
func (s *Store) PutGroup(g *models.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.Name] = g.Clone()
}

// DeleteGroup removes the group.
func (s *Store) DeleteGroup(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, name)
}

// GroupInUse reports whether any component or tag names the group as its
// approval source.
func (s *Store) GroupInUse(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.components {
		if c.RequiresApprovalBy == name {
			return true
		}
	}
	for _, t := range s.tags {
		if t.RequiresApprovalBy == name {
			return true
		}
	}
	return false
}

// --- System sinks ---

// Sink returns a copy of the system sink, or false if unknown.
func (s *Store) Sink(id string) (*models.SystemSink, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sk, ok := s.sinks[id]
	if !ok {
		return nil, false
	}
	return sk.Clone(), true
}

// Sinks returns copies of all system sinks ordered by id.
func (s *Store) Sinks() []*models.SystemSink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.SystemSink, 0, len(s.sinks))
	for _, sk := range s.sinks {
		out = append(out, sk.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PutSink stores a copy of the system sink.
func (s *Store) PutSink(sk *models.SystemSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks[sk.ID] = sk.Clone()
}

// DeleteSink removes the system sink.
func (s *Store) DeleteSink(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sinks, id)
}

// --- Index queries ---

// StatusCounts returns the number of operations per status.
func (s *Store) StatusCounts() map[models.Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Status]int, len(s.idx.byStatus))
	for st, set := range s.idx.byStatus {
		out[st] = len(set)
	}
	return out
}

// ActiveLockHolder returns the id of the in-progress or paused operation
// holding an exclusive lock on the component, if any.
func (s *Store) ActiveLockHolder(component string) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idx.activeLocks[component]
	return id, ok
}

// ActiveOpsOnComponent returns ids of in-progress or paused operations that
// reference the component, ordered by id.
func (s *Store) ActiveOpsOnComponent(component string) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.idx.activeByComponent[component])
}

// Dependents returns ids of operations that depend on the given operation,
// ordered by id.
func (s *Store) Dependents(id uint64) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.idx.dependents[id])
}

// SubscribersFor returns the deduplicated set of user names whose
// subscriptions match the operation, ordered by name.
func (s *Store) SubscribersFor(op *models.Operation) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for name := range s.idx.subsByOp[op.ID] {
		seen[name] = struct{}{}
	}
	for _, c := range op.Components {
		for name := range s.idx.subsByComponent[c] {
			seen[name] = struct{}{}
		}
	}
	for _, t := range op.Tags {
		for name := range s.idx.subsByTag[t] {
			seen[name] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func sortedIDs(set map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
