package model

import "time"

type Mailbox struct {
	SessionID  string      `gorm:"size:255;primaryKey"`
	Offer      []byte      `gorm:"type:bytea"`
	Answer     []byte      `gorm:"type:bytea"`
	CreatedAt  time.Time   `gorm:"not null"`
	UpdatedAt  time.Time   `gorm:"not null;index"`
	Candidates []Candidate `gorm:"foreignKey:SessionID;references:SessionID;constraint:OnDelete:CASCADE"`
	Members    []Member    `gorm:"foreignKey:SessionID;references:SessionID;constraint:OnDelete:CASCADE"`
}

func (Mailbox) TableName() string { return "signal_mailboxes" }

// Candidate ids are a bigserial, so ordering by id gives insertion order.
type Candidate struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"size:255;index;not null"`
	Role      string    `gorm:"size:16;not null"`
	Payload   []byte    `gorm:"type:bytea;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Candidate) TableName() string { return "signal_candidates" }

type Member struct {
	SessionID string    `gorm:"size:255;primaryKey"`
	Subject   string    `gorm:"size:255;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Member) TableName() string { return "signal_members" }
