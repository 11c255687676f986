package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an operation.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusAborted    Status = "aborted"
	StatusCanceled   Status = "canceled"
)

// ParseStatus converts a string into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown operation status: %q", s)
	}
	return st, nil
}

// Valid reports whether the status is one of the defined lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusPaused,
		StatusCompleted, StatusAborted, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether the status is a terminal state. Terminal
// operations accept no further transitions; only annotation edits remain
// allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusAborted, StatusCanceled:
		return true
	}
	return false
}

// Active reports whether the operation currently occupies its locks:
// in_progress or paused.
func (s Status) Active() bool {
	return s == StatusInProgress || s == StatusPaused
}

// CanTransitionTo reports whether the transition s → to appears in the
// state-machine table. Self-transitions are not part of the table; edits
// that keep the status unchanged do not go through it.
func (s Status) CanTransitionTo(to Status) bool {
	switch s {
	case StatusPlanned:
		return to == StatusInProgress || to == StatusCanceled
	case StatusInProgress:
		return to == StatusPaused || to == StatusCompleted || to == StatusAborted
	case StatusPaused:
		return to == StatusInProgress
	}
	return false
}

// Operation is a tracked procedure performed against named components.
// It is the central record of the coordination engine; every field except
// ID and Status is supplied by clients and validated on admission.
type Operation struct {
	ID      uint64 `json:"id"`
	Title   string `json:"title"`
	Purpose string `json:"purpose"`
	URL     string `json:"url"`
	Status  Status `json:"status"`

	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`

	Components []string `json:"components"`
	Locks      []string `json:"locks"`
	Tags       []string `json:"tags"`
	DependsOn  []uint64 `json:"depends_on"`
	Operators  []string `json:"operators"`
	ApprovedBy []string `json:"approved_by"`

	Annotations map[string]string `json:"annotations"`
}

// Clone returns a deep copy. Store reads hand out clones so callers can
// never mutate authoritative state.
func (o *Operation) Clone() *Operation {
	if o == nil {
		return nil
	}
	c := *o
	c.Components = append([]string(nil), o.Components...)
	c.Locks = append([]string(nil), o.Locks...)
	c.Tags = append([]string(nil), o.Tags...)
	c.DependsOn = append([]uint64(nil), o.DependsOn...)
	c.Operators = append([]string(nil), o.Operators...)
	c.ApprovedBy = append([]string(nil), o.ApprovedBy...)
	if o.StartsAt != nil {
		t := *o.StartsAt
		c.StartsAt = &t
	}
	if o.EndsAt != nil {
		t := *o.EndsAt
		c.EndsAt = &t
	}
	if o.Annotations != nil {
		c.Annotations = make(map[string]string, len(o.Annotations))
		for k, v := range o.Annotations {
			c.Annotations[k] = v
		}
	}
	return &c
}

// HasComponent reports whether the operation targets the component.
func (o *Operation) HasComponent(name string) bool {
	return containsString(o.Components, name)
}

// HasLock reports whether the operation claims an exclusive lock on the component.
func (o *Operation) HasLock(name string) bool {
	return containsString(o.Locks, name)
}

// HasTag reports whether the operation carries the tag.
func (o *Operation) HasTag(name string) bool {
	return containsString(o.Tags, name)
}

// IsOperator reports whether the user is listed as an operator.
func (o *Operation) IsOperator(user string) bool {
	return containsString(o.Operators, user)
}

// IsApprover reports whether the user has already approved the operation.
func (o *Operation) IsApprover(user string) bool {
	return containsString(o.ApprovedBy, user)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
