package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/domain"
)

var (
	ErrCapacityExceeded = errors.New("too many active sessions")
	ErrSessionFull      = errors.New("session already has the maximum number of members")
)

// MailboxRepository reads unknown sessions as domain.EmptySnapshot.
// DeleteIdle removes a session only if it is still idle since idleBefore.
type MailboxRepository interface {
	SetOffer(ctx context.Context, sessionID string, payload json.RawMessage) error
	SetAnswer(ctx context.Context, sessionID string, payload json.RawMessage) error
	AppendCandidate(ctx context.Context, sessionID string, role domain.Role, payload json.RawMessage) error
	Read(ctx context.Context, sessionID string) (domain.Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteIdle(ctx context.Context, sessionID string, idleBefore time.Time) (bool, error)
	Admit(ctx context.Context, sessionID string, subject string, limit int) error
	Sweep(ctx context.Context, idleBefore time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}
