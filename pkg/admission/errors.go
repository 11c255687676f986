package admission

import "fmt"

// Kind classifies a denial. Kinds are part of the API contract and are
// returned verbatim to callers.
type Kind string

const (
	KindNotFound                Kind = "not_found"
	KindInvalidInput            Kind = "invalid_input"
	KindInvalidTransition       Kind = "invalid_transition"
	KindDependencyPending       Kind = "dependency_pending"
	KindDependencyUnsatisfiable Kind = "dependency_unsatisfiable"
	KindNeedsApproval           Kind = "needs_approval"
	KindLockConflict            Kind = "lock_conflict"
	KindCycleDetected           Kind = "cycle_detected"
	KindScheduleConflict        Kind = "schedule_conflict_with_dependency"
	KindUnauthorized            Kind = "unauthorized"
	KindConflict                Kind = "conflict"
	KindInternal                Kind = "internal"
)

// Denial is a structured admission failure. It never indicates partial
// mutation: a denied request leaves all state untouched.
type Denial struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// deny builds a plain denial.
func deny(kind Kind, format string, args ...any) *Denial {
	return &Denial{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// denyDetail builds a denial carrying machine-readable detail.
func denyDetail(kind Kind, detail map[string]any, format string, args ...any) *Denial {
	return &Denial{Kind: kind, Message: fmt.Sprintf(format, args...), Detail: detail}
}
