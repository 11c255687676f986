// Package admission decides whether a proposed mutation of the domain store
// may proceed. Predicates are evaluated in a fixed order and the first
// failure is reported; an admitted request is guaranteed to violate no
// cross-entity invariant when applied by the single writer.
package admission

import (
	"time"

	"github.com/smokestack-project/smokestack/pkg/models"
	"github.com/smokestack-project/smokestack/pkg/store"
)

// Controller evaluates admission predicates against current store state.
// It never mutates anything.
type Controller struct {
	store      *store.Store
	adminGroup string
}

// New creates a controller. adminGroup may be empty, which disables the
// admin override for destructive actions.
func New(st *store.Store, adminGroup string) *Controller {
	return &Controller{store: st, adminGroup: adminGroup}
}

// AdmitTransition checks a transition request (op, to, actor) against the
// gates of the admission order: authorization, transition legality,
// dependency gate, approval gate, lock gate. Returns nil when admitted.
func (c *Controller) AdmitTransition(op *models.Operation, to models.Status, actor string, now time.Time) *Denial {
	if d := c.authorize(op, actor, to == models.StatusCanceled || to == models.StatusAborted); d != nil {
		return d
	}

	if !op.Status.CanTransitionTo(to) {
		return deny(KindInvalidTransition, "operation %d cannot transition from %s to %s", op.ID, op.Status, to)
	}

	starting := op.Status == models.StatusPlanned && to == models.StatusInProgress
	if starting {
		if d := c.dependencyGate(op); d != nil {
			return d
		}
		if d := c.approvalGate(op); d != nil {
			return d
		}
	}

	if to.Active() {
		if d := c.lockGate(op); d != nil {
			return d
		}
	}
	return nil
}

// AdmitEdit checks that the actor may edit the operation. Edits are never
// destructive, so the admin override does not apply.
func (c *Controller) AdmitEdit(op *models.Operation, actor string) *Denial {
	return c.authorize(op, actor, false)
}

// authorize implements the capability rule: operators and owners of any
// affected component may mutate the operation; members of the admin group
// may additionally perform destructive actions on operations they do not
// operate.
func (c *Controller) authorize(op *models.Operation, actor string, destructive bool) *Denial {
	if op.IsOperator(actor) {
		return nil
	}
	for _, name := range op.Components {
		if comp, ok := c.store.Component(name); ok && comp.HasOwner(actor) {
			return nil
		}
	}
	if destructive && c.isAdmin(actor) {
		return nil
	}
	return deny(KindUnauthorized, "user %s is not an operator or component owner of operation %d", actor, op.ID)
}

func (c *Controller) isAdmin(actor string) bool {
	if c.adminGroup == "" {
		return false
	}
	g, ok := c.store.Group(c.adminGroup)
	return ok && g.HasMember(actor)
}

// dependencyGate requires every dependency to be completed before an
// operation leaves planned. An aborted or canceled dependency can never
// complete, so the denial distinguishes unsatisfiable from pending.
func (c *Controller) dependencyGate(op *models.Operation) *Denial {
	for _, dep := range op.DependsOn {
		d, ok := c.store.Operation(dep)
		if !ok {
			return deny(KindInternal, "operation %d depends on unknown operation %d", op.ID, dep)
		}
		switch {
		case d.Status == models.StatusCompleted:
			// satisfied
		case d.Status.Terminal():
			return denyDetail(KindDependencyUnsatisfiable,
				map[string]any{"dependency": dep, "status": d.Status},
				"dependency %d is %s and will never complete", dep, d.Status)
		default:
			return denyDetail(KindDependencyPending,
				map[string]any{"dependency": dep, "status": d.Status},
				"dependency %d is not completed yet (%s)", dep, d.Status)
		}
	}
	return nil
}

// approvalGate enforces every quorum demanded by the operation's components
// and tags: the count of distinct approvers who are members of the required
// group must reach the configured threshold.
func (c *Controller) approvalGate(op *models.Operation) *Denial {
	for _, name := range op.Components {
		comp, ok := c.store.Component(name)
		if !ok {
			continue
		}
		if d := c.checkQuorum(op, "component", name, comp.RequiresApprovalBy, comp.RequiredApprovals); d != nil {
			return d
		}
	}
	for _, name := range op.Tags {
		tag, ok := c.store.Tag(name)
		if !ok {
			continue
		}
		if d := c.checkQuorum(op, "tag", name, tag.RequiresApprovalBy, tag.RequiredApprovals); d != nil {
			return d
		}
	}
	return nil
}

func (c *Controller) checkQuorum(op *models.Operation, scope, name, groupName string, need int) *Denial {
	if groupName == "" || need <= 0 {
		return nil
	}
	group, ok := c.store.Group(groupName)
	if !ok {
		return deny(KindInternal, "%s %s requires approval by unknown group %s", scope, name, groupName)
	}

	have := 0
	for _, approver := range op.ApprovedBy {
		if group.HasMember(approver) {
			have++
		}
	}
	if have < need {
		return denyDetail(KindNeedsApproval,
			map[string]any{"scope": scope + ":" + name, "group": groupName, "have": have, "need": need},
			"%s %s requires %d approvals from group %s, have %d", scope, name, need, groupName, have)
	}
	return nil
}

// lockGate enforces the symmetric exclusion rule: an operation claiming a
// lock on c is blocked by any in-flight work referencing c, and an
// operation referencing c is blocked by any in-flight lock holder of c.
// The operation itself is never its own conflict, which makes repeated
// pause/start cycles admissible.
func (c *Controller) lockGate(op *models.Operation) *Denial {
	for _, locked := range op.Locks {
		for _, id := range c.store.ActiveOpsOnComponent(locked) {
			if id != op.ID {
				return denyDetail(KindLockConflict,
					map[string]any{"op": id, "component": locked},
					"component %s is in use by operation %d", locked, id)
			}
		}
	}
	for _, comp := range op.Components {
		if holder, ok := c.store.ActiveLockHolder(comp); ok && holder != op.ID {
			return denyDetail(KindLockConflict,
				map[string]any{"op": holder, "component": comp},
				"component %s is locked by operation %d", comp, holder)
		}
	}
	return nil
}
