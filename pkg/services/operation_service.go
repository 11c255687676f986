package services

import (
	"time"

	"github.com/smokestack-project/smokestack/pkg/engine"
	"github.com/smokestack-project/smokestack/pkg/models"
	"github.com/smokestack-project/smokestack/pkg/store"
)

// CreateOperationInput contains the domain-level data needed to create an
// operation. Transformed from the HTTP request + headers by the handler.
type CreateOperationInput struct {
	Title       string
	Purpose     string
	URL         string
	StartsAt    *time.Time
	EndsAt      *time.Time
	Components  []string
	Locks       []string
	Tags        []string
	DependsOn   []uint64
	Operators   []string
	Annotations map[string]string
}

// EditOperationInput carries a partial update. Nil fields are left unchanged;
// an empty non-nil slice clears the field.
type EditOperationInput struct {
	Title       *string
	Purpose     *string
	URL         *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	ClearWindow bool
	Components  *[]string
	Locks       *[]string
	Tags        *[]string
	DependsOn   *[]uint64
	Operators   *[]string
	Annotations *map[string]string
}

// OperationService handles operation lifecycle requests.
type OperationService struct {
	engine *engine.Engine
	store  *store.Store
}

// NewOperationService creates a new OperationService.
func NewOperationService(eng *engine.Engine, st *store.Store) *OperationService {
	if eng == nil {
		panic("NewOperationService: engine must not be nil")
	}
	if st == nil {
		panic("NewOperationService: store must not be nil")
	}
	return &OperationService{engine: eng, store: st}
}

// Create validates and stores a new operation in planned status.
func (s *OperationService) Create(actor string, input CreateOperationInput) (*models.Operation, error) {
	op := &models.Operation{
		Title:       input.Title,
		Purpose:     input.Purpose,
		URL:         input.URL,
		StartsAt:    input.StartsAt,
		EndsAt:      input.EndsAt,
		Components:  input.Components,
		Locks:       input.Locks,
		Tags:        input.Tags,
		DependsOn:   input.DependsOn,
		Operators:   input.Operators,
		Annotations: input.Annotations,
	}
	return s.engine.CreateOperation(actor, op)
}

// Get returns the operation by id.
func (s *OperationService) Get(id uint64) (*models.Operation, error) {
	op, ok := s.store.Operation(id)
	if !ok {
		return nil, ErrNotFound
	}
	return op, nil
}

// List returns operations matching the filter, ordered by id.
func (s *OperationService) List(f store.OperationFilter) []*models.Operation {
	return s.store.ListOperations(f)
}

// Edit applies a partial update to the operation's mutable fields.
func (s *OperationService) Edit(actor string, id uint64, input EditOperationInput) (*models.Operation, error) {
	op, ok := s.store.Operation(id)
	if !ok {
		return nil, ErrNotFound
	}

	if input.Title != nil {
		op.Title = *input.Title
	}
	if input.Purpose != nil {
		op.Purpose = *input.Purpose
	}
	if input.URL != nil {
		op.URL = *input.URL
	}
	if input.ClearWindow {
		op.StartsAt, op.EndsAt = nil, nil
	}
	if input.StartsAt != nil {
		op.StartsAt = input.StartsAt
	}
	if input.EndsAt != nil {
		op.EndsAt = input.EndsAt
	}
	if input.Components != nil {
		op.Components = *input.Components
	}
	if input.Locks != nil {
		op.Locks = *input.Locks
	}
	if input.Tags != nil {
		op.Tags = *input.Tags
	}
	if input.DependsOn != nil {
		op.DependsOn = *input.DependsOn
	}
	if input.Operators != nil {
		op.Operators = *input.Operators
	}
	if input.Annotations != nil {
		op.Annotations = *input.Annotations
	}

	return s.engine.EditOperation(actor, op)
}

// Transition drives the operation's state machine.
func (s *OperationService) Transition(actor string, id uint64, to string, note string) (*models.Operation, error) {
	status, err := models.ParseStatus(to)
	if err != nil {
		return nil, NewValidationError("to", err.Error())
	}
	return s.engine.Transition(actor, id, status, note)
}

// Approve records the actor's approval of the operation.
func (s *OperationService) Approve(actor string, id uint64) (*models.Operation, error) {
	return s.engine.Approve(actor, id)
}

// SetApprovals replaces the approval set. For external synchronizers.
func (s *OperationService) SetApprovals(actor string, id uint64, approvers []string) (*models.Operation, error) {
	return s.engine.SetApprovals(actor, id, approvers)
}

// Comment records a note on the operation.
func (s *OperationService) Comment(actor string, id uint64, note string) (*models.Operation, error) {
	return s.engine.Comment(actor, id, note)
}
