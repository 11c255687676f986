package store

import (
	"github.com/smokestack-project/smokestack/pkg/models"
)

// indexes holds all derived lookup structures. They are recomputed
// incrementally on each commit and fully on snapshot load, so they are never
// persisted.
type indexes struct {
	byStatus    map[models.Status]map[uint64]struct{}
	byComponent map[string]map[uint64]struct{}
	byTag       map[string]map[uint64]struct{}

	// activeLocks maps component → id of the single in-progress/paused
	// operation holding an exclusive lock on it.
	activeLocks map[string]uint64

	// activeByComponent maps component → ids of in-progress/paused
	// operations referencing it.
	activeByComponent map[string]map[uint64]struct{}

	// dependents is the reverse of depends_on.
	dependents map[uint64]map[uint64]struct{}

	// Subscription selectors → subscriber user names.
	subsByOp        map[uint64]map[string]struct{}
	subsByComponent map[string]map[string]struct{}
	subsByTag       map[string]map[string]struct{}
}

func (x *indexes) reset() {
	x.byStatus = make(map[models.Status]map[uint64]struct{})
	x.byComponent = make(map[string]map[uint64]struct{})
	x.byTag = make(map[string]map[uint64]struct{})
	x.activeLocks = make(map[string]uint64)
	x.activeByComponent = make(map[string]map[uint64]struct{})
	x.dependents = make(map[uint64]map[uint64]struct{})
	x.subsByOp = make(map[uint64]map[string]struct{})
	x.subsByComponent = make(map[string]map[string]struct{})
	x.subsByTag = make(map[string]map[string]struct{})
}

// reindexOperation removes prev's contributions and adds op's. prev may be
// nil for a newly created operation. Must run under the store write lock.
func (x *indexes) reindexOperation(prev, op *models.Operation) {
	if prev != nil {
		x.dropOperation(prev)
	}

	addID(x.byStatus, op.Status, op.ID)
	for _, c := range op.Components {
		addID(x.byComponent, c, op.ID)
	}
	for _, t := range op.Tags {
		addID(x.byTag, t, op.ID)
	}
	for _, dep := range op.DependsOn {
		if x.dependents[dep] == nil {
			x.dependents[dep] = make(map[uint64]struct{})
		}
		x.dependents[dep][op.ID] = struct{}{}
	}

	if op.Status.Active() {
		for _, c := range op.Components {
			addID(x.activeByComponent, c, op.ID)
		}
		for _, l := range op.Locks {
			x.activeLocks[l] = op.ID
		}
	}
}

func (x *indexes) dropOperation(op *models.Operation) {
	removeID(x.byStatus, op.Status, op.ID)
	for _, c := range op.Components {
		removeID(x.byComponent, c, op.ID)
	}
	for _, t := range op.Tags {
		removeID(x.byTag, t, op.ID)
	}
	for _, dep := range op.DependsOn {
		if set := x.dependents[dep]; set != nil {
			delete(set, op.ID)
			if len(set) == 0 {
				delete(x.dependents, dep)
			}
		}
	}
	if op.Status.Active() {
		for _, c := range op.Components {
			removeID(x.activeByComponent, c, op.ID)
		}
		for _, l := range op.Locks {
			if x.activeLocks[l] == op.ID {
				delete(x.activeLocks, l)
			}
		}
	}
}

// reindexSubscriptions replaces the user's entries across all three
// selector indexes. Must run under the store write lock.
func (x *indexes) reindexSubscriptions(user string, subs *models.SubscriptionSet) {
	for _, set := range x.subsByOp {
		delete(set, user)
	}
	for _, set := range x.subsByComponent {
		delete(set, user)
	}
	for _, set := range x.subsByTag {
		delete(set, user)
	}

	for _, id := range subs.Operations {
		if x.subsByOp[id] == nil {
			x.subsByOp[id] = make(map[string]struct{})
		}
		x.subsByOp[id][user] = struct{}{}
	}
	for _, c := range subs.Components {
		addUser(x.subsByComponent, c, user)
	}
	for _, t := range subs.Tags {
		addUser(x.subsByTag, t, user)
	}
}

func addID[K comparable](m map[K]map[uint64]struct{}, key K, id uint64) {
	if m[key] == nil {
		m[key] = make(map[uint64]struct{})
	}
	m[key][id] = struct{}{}
}

func removeID[K comparable](m map[K]map[uint64]struct{}, key K, id uint64) {
	if set := m[key]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}

func addUser(m map[string]map[string]struct{}, key, user string) {
	if m[key] == nil {
		m[key] = make(map[string]struct{})
	}
	m[key][user] = struct{}{}
}

// rebuild recomputes every index from scratch. Used after snapshot load.
func (s *Store) rebuild() {
	s.idx.reset()
	for _, op := range s.operations {
		s.idx.reindexOperation(nil, op)
	}
	for name, u := range s.users {
		s.idx.reindexSubscriptions(name, &u.Subscriptions)
	}
}
