package services

import (
	"github.com/smokestack-project/smokestack/pkg/engine"
	"github.com/smokestack-project/smokestack/pkg/models"
	"github.com/smokestack-project/smokestack/pkg/store"
)

// SubscriptionService manages the current user's subscription set.
type SubscriptionService struct {
	engine *engine.Engine
	store  *store.Store
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(eng *engine.Engine, st *store.Store) *SubscriptionService {
	if eng == nil {
		panic("NewSubscriptionService: engine must not be nil")
	}
	if st == nil {
		panic("NewSubscriptionService: store must not be nil")
	}
	return &SubscriptionService{engine: eng, store: st}
}

// List returns the user's subscriptions. Unknown users have an empty set.
func (s *SubscriptionService) List(user string) *models.SubscriptionSet {
	u, ok := s.store.User(user)
	if !ok {
		return &models.SubscriptionSet{}
	}
	subs := u.Subscriptions.Clone()
	return &subs
}

// Subscribe adds a selector to the user's set. Idempotent.
func (s *SubscriptionService) Subscribe(user string, sel models.Selector) (*models.SubscriptionSet, error) {
	return s.engine.Subscribe(user, sel)
}

// Unsubscribe removes a selector from the user's set. Idempotent.
func (s *SubscriptionService) Unsubscribe(user string, sel models.Selector) (*models.SubscriptionSet, error) {
	return s.engine.Unsubscribe(user, sel)
}
