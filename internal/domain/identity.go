package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Identity is the authenticated caller of a signaling action.
type Identity struct {
	Subject string
	Name    string
	IsGuest bool
}

func NewGuestIdentity(name string) *Identity {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "guest"
	}
	return &Identity{
		Subject: uuid.New().String(),
		Name:    name,
		IsGuest: true,
	}
}
