package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidRole = errors.New("role must be creator or partner")

type Role string

const (
	RoleCreator Role = "creator"
	RolePartner Role = "partner"
)

func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleCreator, RolePartner:
		return Role(raw), nil
	default:
		return "", ErrInvalidRole
	}
}

// SessionState is derived from the mailbox fields; it is never stored.
type SessionState string

const (
	StateEmpty       SessionState = "empty"
	StateOfferPosted SessionState = "offer_posted"
	StateAnswered    SessionState = "answered"
)

// Mailbox holds the handshake messages exchanged by the two peers of a session.
// Payloads are opaque JSON values and are kept byte-for-byte.
type Mailbox struct {
	SessionID         string
	Offer             json.RawMessage
	Answer            json.RawMessage
	CreatorCandidates []json.RawMessage
	PartnerCandidates []json.RawMessage
	Members           map[string]struct{}
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewMailbox(sessionID string, now time.Time) *Mailbox {
	return &Mailbox{
		SessionID: sessionID,
		Members:   make(map[string]struct{}),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendCandidate adds payload to the list owned by role.
func (m *Mailbox) AppendCandidate(role Role, payload json.RawMessage) {
	switch role {
	case RoleCreator:
		m.CreatorCandidates = append(m.CreatorCandidates, clonePayload(payload))
	case RolePartner:
		m.PartnerCandidates = append(m.PartnerCandidates, clonePayload(payload))
	}
}

func (m *Mailbox) SetOffer(payload json.RawMessage) {
	m.Offer = clonePayload(payload)
}

func (m *Mailbox) SetAnswer(payload json.RawMessage) {
	m.Answer = clonePayload(payload)
}

// IdleSince reports whether the mailbox was last updated before cutoff.
func (m *Mailbox) IdleSince(cutoff time.Time) bool {
	return m.UpdatedAt.Before(cutoff)
}

// Snapshot returns a deep copy that is safe to use after the caller
// releases the mailbox lock.
func (m *Mailbox) Snapshot() Snapshot {
	snap := EmptySnapshot()
	snap.Offer = clonePayload(m.Offer)
	snap.Answer = clonePayload(m.Answer)
	for _, c := range m.CreatorCandidates {
		snap.CreatorCandidates = append(snap.CreatorCandidates, clonePayload(c))
	}
	for _, c := range m.PartnerCandidates {
		snap.PartnerCandidates = append(snap.PartnerCandidates, clonePayload(c))
	}
	snap.UpdatedAt = m.UpdatedAt
	return snap
}

// Snapshot is a read-only view of a mailbox. The zero UpdatedAt marks
// a session that does not exist.
type Snapshot struct {
	Offer             json.RawMessage
	Answer            json.RawMessage
	CreatorCandidates []json.RawMessage
	PartnerCandidates []json.RawMessage
	UpdatedAt         time.Time
}

func EmptySnapshot() Snapshot {
	return Snapshot{
		CreatorCandidates: []json.RawMessage{},
		PartnerCandidates: []json.RawMessage{},
	}
}

func (s Snapshot) State() SessionState {
	switch {
	case len(s.Answer) > 0:
		return StateAnswered
	case len(s.Offer) > 0:
		return StateOfferPosted
	default:
		return StateEmpty
	}
}

func clonePayload(p json.RawMessage) json.RawMessage {
	if p == nil {
		return nil
	}
	out := make(json.RawMessage, len(p))
	copy(out, p)
	return out
}
