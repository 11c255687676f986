package models

import (
	"errors"
	"time"
)

// UserKind distinguishes humans from automation identities.
type UserKind string

const (
	UserKindHuman  UserKind = "human"
	UserKindSystem UserKind = "system"
)

// User is an identity known to the coordination engine. Identities are
// resolved upstream (proxy headers, importers); the engine only records them.
type User struct {
	Name          string          `json:"name"`
	Kind          UserKind        `json:"kind"`
	Subscriptions SubscriptionSet `json:"subscriptions"`
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Subscriptions = u.Subscriptions.Clone()
	return &c
}

// Group is a named set of users, referenced by approval quorums and by the
// admin-group authorization rule.
type Group struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}

// HasMember reports whether the user belongs to the group.
func (g *Group) HasMember(user string) bool {
	return containsString(g.Members, user)
}

// Clone returns a deep copy of the group.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	c := *g
	c.Members = append([]string(nil), g.Members...)
	return &c
}

// Component is a target of operations: a service, system, or application.
// A component may demand an approval quorum before operations targeting it
// can start.
type Component struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url,omitempty"`
	Owners      []string `json:"owners"`

	// RequiresApprovalBy names the group whose members may satisfy the
	// quorum; empty means no approval requirement.
	RequiresApprovalBy string `json:"requires_approval_by,omitempty"`
	RequiredApprovals  int    `json:"required_approvals,omitempty"`
}

// HasOwner reports whether the user owns the component.
func (c *Component) HasOwner(user string) bool {
	return containsString(c.Owners, user)
}

// Clone returns a deep copy of the component.
func (c *Component) Clone() *Component {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Owners = append([]string(nil), c.Owners...)
	return &cp
}

// Tag is a free-form label grouping operations. Like components, tags may
// demand an approval quorum.
type Tag struct {
	Name               string `json:"name"`
	Description        string `json:"description"`
	RequiresApprovalBy string `json:"requires_approval_by,omitempty"`
	RequiredApprovals  int    `json:"required_approvals,omitempty"`
}

// Clone returns a copy of the tag.
func (t *Tag) Clone() *Tag {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// ErrSelectorCardinality is returned when a selector does not name exactly
// one of operation, component, or tag.
var ErrSelectorCardinality = errors.New("exactly one of operation, component, or tag must be specified")

// Selector identifies a standing interest: a single operation, every
// operation touching a component, or every operation carrying a tag.
type Selector struct {
	Operation *uint64 `json:"operation,omitempty"`
	Component string  `json:"component,omitempty"`
	Tag       string  `json:"tag,omitempty"`
}

// Validate ensures exactly one selector dimension is set.
func (s Selector) Validate() error {
	n := 0
	if s.Operation != nil {
		n++
	}
	if s.Component != "" {
		n++
	}
	if s.Tag != "" {
		n++
	}
	if n != 1 {
		return ErrSelectorCardinality
	}
	return nil
}

// Matches reports whether the selector matches the operation. Component
// selectors match on the components set, which includes every lock since
// locks are constrained to be a subset of components.
func (s Selector) Matches(op *Operation) bool {
	switch {
	case s.Operation != nil:
		return op.ID == *s.Operation
	case s.Component != "":
		return op.HasComponent(s.Component) || op.HasLock(s.Component)
	case s.Tag != "":
		return op.HasTag(s.Tag)
	}
	return false
}

// SubscriptionSet holds one user's subscriptions across all three selector
// dimensions. All add/remove operations are idempotent.
type SubscriptionSet struct {
	Operations []uint64 `json:"operations"`
	Components []string `json:"components"`
	Tags       []string `json:"tags"`
}

// Matches reports whether any subscription in the set matches the operation.
func (s *SubscriptionSet) Matches(op *Operation) bool {
	for _, id := range s.Operations {
		if op.ID == id {
			return true
		}
	}
	for _, c := range s.Components {
		if op.HasComponent(c) || op.HasLock(c) {
			return true
		}
	}
	for _, t := range s.Tags {
		if op.HasTag(t) {
			return true
		}
	}
	return false
}

// Add inserts the selector into the set. Returns false if it was already present.
func (s *SubscriptionSet) Add(sel Selector) bool {
	switch {
	case sel.Operation != nil:
		for _, id := range s.Operations {
			if id == *sel.Operation {
				return false
			}
		}
		s.Operations = append(s.Operations, *sel.Operation)
	case sel.Component != "":
		if containsString(s.Components, sel.Component) {
			return false
		}
		s.Components = append(s.Components, sel.Component)
	case sel.Tag != "":
		if containsString(s.Tags, sel.Tag) {
			return false
		}
		s.Tags = append(s.Tags, sel.Tag)
	default:
		return false
	}
	return true
}

// Remove deletes the selector from the set. Returns false if it was not present.
func (s *SubscriptionSet) Remove(sel Selector) bool {
	switch {
	case sel.Operation != nil:
		for i, id := range s.Operations {
			if id == *sel.Operation {
				s.Operations = append(s.Operations[:i], s.Operations[i+1:]...)
				return true
			}
		}
	case sel.Component != "":
		for i, c := range s.Components {
			if c == sel.Component {
				s.Components = append(s.Components[:i], s.Components[i+1:]...)
				return true
			}
		}
	case sel.Tag != "":
		for i, t := range s.Tags {
			if t == sel.Tag {
				s.Tags = append(s.Tags[:i], s.Tags[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy of the set.
func (s SubscriptionSet) Clone() SubscriptionSet {
	return SubscriptionSet{
		Operations: append([]uint64(nil), s.Operations...),
		Components: append([]string(nil), s.Components...),
		Tags:       append([]string(nil), s.Tags...),
	}
}

// HistoryRecord is one entry of the append-only compliance log. Exactly one
// record exists per accepted status change; records are never mutated.
type HistoryRecord struct {
	OpID      uint64    `json:"op_id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Note      string    `json:"note,omitempty"`

	// Components and Tags capture op membership at the time of the record,
	// so history stays queryable by component/tag even after edits.
	Components []string `json:"components,omitempty"`
	Tags       []string `json:"tags,omitempty"`

	// Source marks records produced by external synchronizers
	// (e.g. approval imports) rather than direct API calls.
	Source string `json:"source,omitempty"`
}

// SystemSink is a registered external event receiver (chat bot, webhook).
// Target is an opaque delivery handle interpreted by the configured deliverer.
type SystemSink struct {
	ID       string   `json:"id"`
	Selector Selector `json:"selector"`

	// Events filters by event kind; empty means all kinds.
	Events []string `json:"events,omitempty"`
	Target string   `json:"target"`
}

// WantsKind reports whether the sink's filter accepts the event kind.
func (s *SystemSink) WantsKind(kind string) bool {
	if len(s.Events) == 0 {
		return true
	}
	return containsString(s.Events, kind)
}

// Clone returns a deep copy of the sink.
func (s *SystemSink) Clone() *SystemSink {
	if s == nil {
		return nil
	}
	c := *s
	c.Events = append([]string(nil), s.Events...)
	if s.Selector.Operation != nil {
		id := *s.Selector.Operation
		c.Selector.Operation = &id
	}
	return &c
}
