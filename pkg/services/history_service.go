package services

import (
	"github.com/smokestack-project/smokestack/pkg/models"
	"github.com/smokestack-project/smokestack/pkg/store"
)

// HistoryService exposes the append-only compliance log for querying.
type HistoryService struct {
	history *store.HistoryLog
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(h *store.HistoryLog) *HistoryService {
	if h == nil {
		panic("NewHistoryService: history must not be nil")
	}
	return &HistoryService{history: h}
}

// Query returns records matching the filter in append order.
func (s *HistoryService) Query(f store.HistoryFilter) []models.HistoryRecord {
	return s.history.Query(f)
}
