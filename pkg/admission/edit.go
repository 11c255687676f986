package admission

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/smokestack-project/smokestack/pkg/models"
)

// ValidateOperation normalizes and validates a proposed operation record
// for create (prev == nil) or edit. The record is normalized in place:
// names trimmed, lists sorted and deduplicated. Returns nil when valid.
func (c *Controller) ValidateOperation(op *models.Operation, prev *models.Operation, now time.Time) *Denial {
	op.Title = strings.TrimSpace(op.Title)
	if op.Title == "" {
		return deny(KindInvalidInput, "title cannot be blank")
	}
	op.Purpose = strings.TrimSpace(op.Purpose)
	if op.Purpose == "" {
		return deny(KindInvalidInput, "purpose cannot be blank")
	}

	u, err := url.Parse(op.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return deny(KindInvalidInput, "url should have http or https scheme")
	}

	op.Components = normalizeNames(op.Components)
	if len(op.Components) == 0 {
		return deny(KindInvalidInput, "at least one component is required")
	}
	for _, name := range op.Components {
		if _, ok := c.store.Component(name); !ok {
			return deny(KindNotFound, "component %s not found", name)
		}
	}

	op.Locks = normalizeNames(op.Locks)
	for _, lock := range op.Locks {
		if !op.HasComponent(lock) {
			return deny(KindInvalidInput, "locked component %s must be one of the affected components", lock)
		}
	}

	op.Tags = normalizeNames(op.Tags)
	for _, name := range op.Tags {
		if _, ok := c.store.Tag(name); !ok {
			return deny(KindNotFound, "tag %s not found", name)
		}
	}

	op.Operators = normalizeNames(op.Operators)
	if len(op.Operators) == 0 {
		return deny(KindInvalidInput, "at least one operator is required")
	}
	for _, name := range op.Operators {
		if _, ok := c.store.User(name); !ok {
			return deny(KindNotFound, "user %s not found", name)
		}
	}

	op.DependsOn = normalizeIDs(op.DependsOn)
	for _, dep := range op.DependsOn {
		if dep == op.ID {
			return deny(KindCycleDetected, "operation %d cannot depend on itself", op.ID)
		}
		if _, ok := c.store.Operation(dep); !ok {
			return deny(KindNotFound, "operation %d not found", dep)
		}
	}
	if d := c.checkCycle(op); d != nil {
		return d
	}

	if op.StartsAt != nil && op.EndsAt != nil && op.EndsAt.Before(*op.StartsAt) {
		return deny(KindInvalidInput, "starts_at must not be after ends_at")
	}
	if d := c.checkSchedule(op, now); d != nil {
		return d
	}

	if prev != nil && prev.Status.Terminal() {
		if !sameExceptAnnotations(prev, op) {
			return deny(KindConflict, "operation %d is %s; only annotation edits are allowed", op.ID, prev.Status)
		}
	}

	// An operation already in flight keeps holding its admission: growing
	// its component or lock footprint must clear the lock gate again, or two
	// active operations could end up locking the same component.
	if prev != nil && prev.Status.Active() {
		if !equalStrings(prev.Components, op.Components) || !equalStrings(prev.Locks, op.Locks) {
			if d := c.lockGate(op); d != nil {
				return d
			}
		}
	}
	return nil
}

// checkCycle rejects edits that would make the operation reachable from its
// own dependencies. Only op's outgoing edges change in an edit, so a new
// cycle must pass through op itself.
func (c *Controller) checkCycle(op *models.Operation) *Denial {
	visited := make(map[uint64]bool)
	var walk func(id uint64) bool
	walk = func(id uint64) bool {
		if id == op.ID {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		node, ok := c.store.Operation(id)
		if !ok {
			return false
		}
		for _, dep := range node.DependsOn {
			if walk(dep) {
				return true
			}
		}
		return false
	}

	for _, dep := range op.DependsOn {
		if walk(dep) {
			return denyDetail(KindCycleDetected,
				map[string]any{"dependency": dep},
				"dependency on operation %d would create a cycle", dep)
		}
	}
	return nil
}

// checkSchedule denies a scheduled start earlier than the latest known end
// of any dependency. An overdue in-progress dependency has no known end and
// does not constrain the schedule.
func (c *Controller) checkSchedule(op *models.Operation, now time.Time) *Denial {
	if op.StartsAt == nil {
		return nil
	}
	for _, dep := range op.DependsOn {
		d, ok := c.store.Operation(dep)
		if !ok {
			continue
		}
		end, known := effectiveEndsAt(d, now)
		if known && op.StartsAt.Before(end) {
			return denyDetail(KindScheduleConflict,
				map[string]any{"dependency": dep, "dependency_ends_at": end},
				"operation cannot start at %s before dependency %d ends at %s",
				op.StartsAt.Format(time.RFC3339), dep, end.Format(time.RFC3339))
		}
	}
	return nil
}

// effectiveEndsAt returns the dependency's end time if it is known. An
// operation still in progress past its scheduled end has an undefined end
// until it terminates.
func effectiveEndsAt(op *models.Operation, now time.Time) (time.Time, bool) {
	if op.EndsAt == nil {
		return time.Time{}, false
	}
	if op.Status == models.StatusInProgress && now.After(*op.EndsAt) {
		return time.Time{}, false
	}
	return *op.EndsAt, true
}

// ValidateSelector checks that a subscription or sink selector names exactly
// one existing entity.
func (c *Controller) ValidateSelector(sel models.Selector) *Denial {
	if err := sel.Validate(); err != nil {
		return deny(KindInvalidInput, "%s", err.Error())
	}
	switch {
	case sel.Operation != nil:
		if _, ok := c.store.Operation(*sel.Operation); !ok {
			return deny(KindNotFound, "operation %d not found", *sel.Operation)
		}
	case sel.Component != "":
		if _, ok := c.store.Component(sel.Component); !ok {
			return deny(KindNotFound, "component %s not found", sel.Component)
		}
	case sel.Tag != "":
		if _, ok := c.store.Tag(sel.Tag); !ok {
			return deny(KindNotFound, "tag %s not found", sel.Tag)
		}
	}
	return nil
}

func normalizeNames(list []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return dedupStrings(out)
}

func normalizeIDs(list []uint64) []uint64 {
	out := append([]uint64(nil), list...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, v := range out {
		if i == 0 || out[i-1] != v {
			out[n] = v
			n++
		}
	}
	return out[:n]
}

func dedupStrings(sorted []string) []string {
	n := 0
	for i, v := range sorted {
		if i == 0 || sorted[i-1] != v {
			sorted[n] = v
			n++
		}
	}
	return sorted[:n]
}

// sameExceptAnnotations reports whether two records differ only in their
// annotations.
func sameExceptAnnotations(a, b *models.Operation) bool {
	return a.Title == b.Title &&
		a.Purpose == b.Purpose &&
		a.URL == b.URL &&
		a.Status == b.Status &&
		equalTimes(a.StartsAt, b.StartsAt) &&
		equalTimes(a.EndsAt, b.EndsAt) &&
		equalStrings(a.Components, b.Components) &&
		equalStrings(a.Locks, b.Locks) &&
		equalStrings(a.Tags, b.Tags) &&
		equalIDs(a.DependsOn, b.DependsOn) &&
		equalStrings(a.Operators, b.Operators) &&
		equalStrings(a.ApprovedBy, b.ApprovedBy)
}

func equalTimes(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalIDs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
