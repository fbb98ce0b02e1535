package service

import (
	"context"

	"github.com/ranielm/planning-poker-sub000/internal/session"
)

// HistoryService serves past revealed rounds over REST. It goes through
// the coordinator so REST and websocket readers see the same ordering.
type HistoryService struct {
	hub *session.Hub
}

func NewHistoryService(hub *session.Hub) *HistoryService {
	return &HistoryService{hub: hub}
}

func (s *HistoryService) ListByRoom(ctx context.Context, roomID uint, limit int) ([]session.RoundHistory, error) {
	c, err := s.hub.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return c.History(ctx, limit)
}
