package services

import (
	"github.com/smokestack-project/smokestack/pkg/engine"
	"github.com/smokestack-project/smokestack/pkg/models"
	"github.com/smokestack-project/smokestack/pkg/store"
)

// RegistryService handles components, tags, groups, users, and system sinks.
type RegistryService struct {
	engine *engine.Engine
	store  *store.Store
}

// NewRegistryService creates a new RegistryService.
func NewRegistryService(eng *engine.Engine, st *store.Store) *RegistryService {
	if eng == nil {
		panic("NewRegistryService: engine must not be nil")
	}
	if st == nil {
		panic("NewRegistryService: store must not be nil")
	}
	return &RegistryService{engine: eng, store: st}
}

// --- Components ---

func (s *RegistryService) GetComponent(name string) (*models.Component, error) {
	c, ok := s.store.Component(name)
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *RegistryService) ListComponents() []*models.Component {
	return s.store.Components()
}

func (s *RegistryService) UpsertComponent(actor string, c *models.Component) (*models.Component, error) {
	return s.engine.UpsertComponent(actor, c)
}

func (s *RegistryService) DeleteComponent(actor, name string) error {
	return s.engine.DeleteComponent(actor, name)
}

// --- Tags ---

func (s *RegistryService) GetTag(name string) (*models.Tag, error) {
	t, ok := s.store.Tag(name)
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *RegistryService) ListTags() []*models.Tag {
	return s.store.Tags()
}

func (s *RegistryService) UpsertTag(actor string, t *models.Tag) (*models.Tag, error) {
	return s.engine.UpsertTag(actor, t)
}

func (s *RegistryService) DeleteTag(actor, name string) error {
	return s.engine.DeleteTag(actor, name)
}

// --- Groups ---

func (s *RegistryService) GetGroup(name string) (*models.Group, error) {
	g, ok := s.store.Group(name)
	if !ok {
		return nil, ErrNotFound
	}
	return g, nil
}

func (s *RegistryService) ListGroups() []*models.Group {
	return s.store.Groups()
}

func (s *RegistryService) UpsertGroup(actor string, g *models.Group) (*models.Group, error) {
	return s.engine.UpsertGroup(actor, g)
}

func (s *RegistryService) DeleteGroup(actor, name string) error {
	return s.engine.DeleteGroup(actor, name)
}

// --- Users ---

func (s *RegistryService) GetUser(name string) (*models.User, error) {
	u, ok := s.store.User(name)
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *RegistryService) ListUsers() []*models.User {
	return s.store.Users()
}

func (s *RegistryService) UpsertUser(actor string, u *models.User) (*models.User, error) {
	return s.engine.UpsertUser(actor, u)
}

func (s *RegistryService) DeleteUser(actor, name string) error {
	return s.engine.DeleteUser(actor, name)
}

// --- System sinks ---

func (s *RegistryService) GetSink(id string) (*models.SystemSink, error) {
	sk, ok := s.store.Sink(id)
	if !ok {
		return nil, ErrNotFound
	}
	return sk, nil
}

func (s *RegistryService) ListSinks() []*models.SystemSink {
	return s.store.Sinks()
}

func (s *RegistryService) UpsertSink(actor string, sk *models.SystemSink) (*models.SystemSink, error) {
	return s.engine.UpsertSink(actor, sk)
}

func (s *RegistryService) DeleteSink(actor, id string) error {
	return s.engine.DeleteSink(actor, id)
}
