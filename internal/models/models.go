package models

import (
	"time"

	"gorm.io/datatypes"
)

// Scheme is the vote-value domain of a room.
type Scheme string

const (
	SchemeFibonacci Scheme = "FIBONACCI"
	SchemeTShirt    Scheme = "TSHIRT"
)

// Role of a participant inside a room.
type Role string

const (
	RoleModerator Role = "MODERATOR"
	RoleVoter     Role = "VOTER"
	RoleObserver  Role = "OBSERVER"
)

// Phase of a voting round. A round never moves backwards; reset creates a
// new round instead.
type Phase string

const (
	PhaseWaiting  Phase = "WAITING"
	PhaseVoting   Phase = "VOTING"
	PhaseRevealed Phase = "REVEALED"
)

// Topic is the structured value a round estimates. Stored as JSON on both
// the room (active topic) and the round (snapshot taken at round start).
type Topic struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ExternalKey string `json:"external_key,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`
}

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	Email        string `gorm:"size:128"`
	PasswordHash string `gorm:"not null"`
	DefaultRole  Role   `gorm:"size:16"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:128;not null"`
	Slug      string `gorm:"uniqueIndex;size:64;not null"`
	OwnerID   uint   `gorm:"not null"`
	Scheme    Scheme `gorm:"size:16;not null;default:FIBONACCI"`
	Visible   bool
	Topic     datatypes.JSONType[*Topic]
	DealerID  *uint
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Participant is a user's membership record in a room, unique per
// (room, user). Online status is never stored: it is derived from the
// live connection set held in memory by the session layer.
type Participant struct {
	ID        uint `gorm:"primaryKey"`
	RoomID    uint `gorm:"uniqueIndex:idx_participant_room_user;not null"`
	UserID    uint `gorm:"uniqueIndex:idx_participant_room_user;not null"`
	Role      Role `gorm:"size:16;not null"`
	Away      bool
	AwaySince *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Round is one voting cycle. At most one round per room is not REVEALED;
// starting a new round force-closes any open one.
type Round struct {
	ID         uint  `gorm:"primaryKey"`
	RoomID     uint  `gorm:"index;not null"`
	Phase      Phase `gorm:"size:16;not null"`
	Topic      datatypes.JSONType[*Topic]
	RevealedAt *time.Time
	CreatedAt  time.Time
}

// Vote is unique per (round, user); a second vote from the same user
// overwrites the first. RoomID is denormalized from the round for query
// convenience and is only ever written together with RoundID.
type Vote struct {
	ID        uint   `gorm:"primaryKey"`
	RoundID   uint   `gorm:"uniqueIndex:idx_vote_round_user;not null"`
	RoomID    uint   `gorm:"index;not null"`
	UserID    uint   `gorm:"uniqueIndex:idx_vote_round_user;not null"`
	Value     string `gorm:"size:16;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
