package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ranielm/planning-poker-sub000/internal/models"
	"github.com/ranielm/planning-poker-sub000/internal/session"
)

// RoomService handles the room CRUD surface. Live session mutations go
// through the session hub, never through here.
type RoomService struct {
	db    *gorm.DB
	store session.Store
	hub   *session.Hub
}

func NewRoomService(db *gorm.DB, store session.Store, hub *session.Hub) *RoomService {
	return &RoomService{db: db, store: store, hub: hub}
}

// RoomDTO is the REST-facing room shape.
type RoomDTO struct {
	ID     uint          `json:"id"`
	Name   string        `json:"name"`
	Slug   string        `json:"slug"`
	Scheme models.Scheme `json:"scheme"`
	Owner  uint          `json:"owner_id"`
	Online int           `json:"online"`
}

// Create makes a new room owned by ownerID. The slug is a short random
// token suitable for invite links.
func (s *RoomService) Create(name string, scheme models.Scheme, ownerID uint) (*RoomDTO, error) {
	if scheme == "" {
		scheme = models.SchemeFibonacci
	}
	if scheme != models.SchemeFibonacci && scheme != models.SchemeTShirt {
		return nil, ErrInvalidScheme
	}
	room := models.Room{
		Name:    name,
		Slug:    newSlug(),
		OwnerID: ownerID,
		Scheme:  scheme,
		Visible: true,
	}
	if err := s.db.Create(&room).Error; err != nil {
		return nil, err
	}
	return toDTO(room, 0), nil
}

// List returns visible rooms with their current online counts.
func (s *RoomService) List(limit int) ([]RoomDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	var rooms []models.Room
	if err := s.db.Where("visible = ?", true).Order("id desc").Limit(limit).Find(&rooms).Error; err != nil {
		return nil, err
	}
	out := make([]RoomDTO, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, *toDTO(r, s.hub.Online(r.ID)))
	}
	return out, nil
}

// GetBySlug resolves a room from its invite slug.
func (s *RoomService) GetBySlug(ctx context.Context, slug string) (*RoomDTO, error) {
	room, err := s.store.RoomBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return toDTO(*room, s.hub.Online(room.ID)), nil
}

// Get resolves a room by numeric ID.
func (s *RoomService) Get(ctx context.Context, id uint) (*models.Room, error) {
	room, err := s.store.RoomByID(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// Delete removes the room and its rounds, votes and memberships. Only
// the owner may delete; the live coordinator is dropped afterwards so
// connected clients lose the room.
func (s *RoomService) Delete(ctx context.Context, id, actorID uint) error {
	room, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if room.OwnerID != actorID {
		return ErrNotOwner
	}
	if err := s.store.DeleteRoom(ctx, id); err != nil {
		return err
	}
	s.hub.Drop(id)
	return nil
}

func toDTO(r models.Room, online int) *RoomDTO {
	return &RoomDTO{ID: r.ID, Name: r.Name, Slug: r.Slug, Scheme: r.Scheme, Owner: r.OwnerID, Online: online}
}

func newSlug() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}
