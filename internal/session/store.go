package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ranielm/planning-poker-sub000/internal/models"
)

// ErrNotFound is returned by store lookups for missing records.
var ErrNotFound = errors.New("record not found")

// Store is the narrow persistence surface the session layer needs: atomic
// upserts and simple filtered reads, no cross-room transactions.
type Store interface {
	RoomByID(ctx context.Context, id uint) (*models.Room, error)
	RoomBySlug(ctx context.Context, slug string) (*models.Room, error)
	SaveRoom(ctx context.Context, room *models.Room) error
	DeleteRoom(ctx context.Context, id uint) error

	ParticipantsByRoom(ctx context.Context, roomID uint) ([]models.Participant, error)
	UpsertParticipant(ctx context.Context, p *models.Participant) error
	DeleteParticipant(ctx context.Context, roomID, userID uint) error

	ActiveRound(ctx context.Context, roomID uint) (*models.Round, error)
	CloseOpenRounds(ctx context.Context, roomID uint, at time.Time) error
	CreateRound(ctx context.Context, r *models.Round) error
	SaveRound(ctx context.Context, r *models.Round) error
	RevealedRounds(ctx context.Context, roomID uint, limit int) ([]models.Round, error)

	UpsertVote(ctx context.Context, v *models.Vote) error
	VotesByRound(ctx context.Context, roundID uint) ([]models.Vote, error)

	UsersByIDs(ctx context.Context, ids []uint) (map[uint]models.User, error)
	SetDefaultRole(ctx context.Context, userID uint, role models.Role) error
}

// GormStore implements Store on the shared gorm handle.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (s *GormStore) RoomByID(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	if err := s.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &room, nil
}

func (s *GormStore) RoomBySlug(ctx context.Context, slug string) (*models.Room, error) {
	var room models.Room
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&room).Error; err != nil {
		return nil, mapErr(err)
	}
	return &room, nil
}

func (s *GormStore) SaveRoom(ctx context.Context, room *models.Room) error {
	return s.db.WithContext(ctx).Save(room).Error
}

// DeleteRoom removes the room and everything under it.
func (s *GormStore) DeleteRoom(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", id).Delete(&models.Round{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", id).Delete(&models.Participant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Room{}, id).Error
	})
}

func (s *GormStore) ParticipantsByRoom(ctx context.Context, roomID uint) ([]models.Participant, error) {
	var parts []models.Participant
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id").Find(&parts).Error; err != nil {
		return nil, err
	}
	return parts, nil
}

func (s *GormStore) UpsertParticipant(ctx context.Context, p *models.Participant) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "away", "away_since", "updated_at"}),
	}).Create(p).Error
}

func (s *GormStore) DeleteParticipant(ctx context.Context, roomID, userID uint) error {
	return s.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.Participant{}).Error
}

// ActiveRound returns the room's round that is not yet REVEALED, or nil.
func (s *GormStore) ActiveRound(ctx context.Context, roomID uint) (*models.Round, error) {
	var round models.Round
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND phase <> ?", roomID, models.PhaseRevealed).
		Order("id desc").First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &round, nil
}

// CloseOpenRounds force-transitions every non-revealed round of the room
// to REVEALED, preserving the at-most-one-active-round invariant.
func (s *GormStore) CloseOpenRounds(ctx context.Context, roomID uint, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Round{}).
		Where("room_id = ? AND phase <> ?", roomID, models.PhaseRevealed).
		Updates(map[string]any{"phase": models.PhaseRevealed, "revealed_at": at}).Error
}

func (s *GormStore) CreateRound(ctx context.Context, r *models.Round) error {
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *GormStore) SaveRound(ctx context.Context, r *models.Round) error {
	return s.db.WithContext(ctx).Save(r).Error
}

func (s *GormStore) RevealedRounds(ctx context.Context, roomID uint, limit int) ([]models.Round, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rounds []models.Round
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND phase = ?", roomID, models.PhaseRevealed).
		Order("id desc").Limit(limit).Find(&rounds).Error
	if err != nil {
		return nil, err
	}
	return rounds, nil
}

// UpsertVote writes the single vote record per (round, user); a repeat
// vote overwrites the previous value.
func (s *GormStore) UpsertVote(ctx context.Context, v *models.Vote) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "round_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(v).Error
}

func (s *GormStore) VotesByRound(ctx context.Context, roundID uint) ([]models.Vote, error) {
	var votes []models.Vote
	if err := s.db.WithContext(ctx).Where("round_id = ?", roundID).Order("id").Find(&votes).Error; err != nil {
		return nil, err
	}
	return votes, nil
}

func (s *GormStore) UsersByIDs(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	out := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (s *GormStore) SetDefaultRole(ctx context.Context, userID uint, role models.Role) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).Update("default_role", role).Error
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
