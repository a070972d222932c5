package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/domain"
)

type SignalInteractor interface {
	Dispatch(ctx context.Context, caller *domain.Identity, req domain.SignalRequest) (*domain.SignalResult, error)
	SendOffer(ctx context.Context, caller *domain.Identity, sessionID string, payload json.RawMessage) error
	SendAnswer(ctx context.Context, caller *domain.Identity, sessionID string, payload json.RawMessage) error
	SendCandidate(ctx context.Context, caller *domain.Identity, sessionID string, role domain.Role, payload json.RawMessage) error
	GetSignals(ctx context.Context, caller *domain.Identity, sessionID string) (domain.Snapshot, error)
	Clear(ctx context.Context, caller *domain.Identity, sessionID string) error
}

type IdentityInteractor interface {
	IssueGuest(ctx context.Context, name string) (*GuestToken, error)
	Authenticate(token string) (*domain.Identity, error)
}

type GuestToken struct {
	Identity  *domain.Identity
	Token     string
	ExpiresAt time.Time
}
