package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/auth"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/domain"
)

const maxGuestNameLength = 255

var (
	ErrGuestsDisabled   = errors.New("guest access is disabled")
	ErrGuestNameTooLong = errors.New("guest name is too long")
)

type IdentityService struct {
	auth        *auth.Authenticator
	allowGuests bool
	log         *slog.Logger
}

func NewIdentityService(authenticator *auth.Authenticator, allowGuests bool, log *slog.Logger) *IdentityService {
	if log == nil {
		log = slog.Default()
	}
	return &IdentityService{auth: authenticator, allowGuests: allowGuests, log: log}
}

// IssueGuest mints a token for a fresh guest identity.
func (s *IdentityService) IssueGuest(ctx context.Context, name string) (*GuestToken, error) {
	const op = "service.identity.issueGuest"
	log := s.log.With(slog.String("op", op))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.allowGuests {
		return nil, ErrGuestsDisabled
	}
	if utf8.RuneCountInString(strings.TrimSpace(name)) > maxGuestNameLength {
		return nil, ErrGuestNameTooLong
	}

	identity := domain.NewGuestIdentity(name)
	token, expires, err := s.auth.Issue(identity)
	if err != nil {
		return nil, err
	}

	log.Info("guest token issued", "subject", identity.Subject, "name", identity.Name)
	return &GuestToken{Identity: identity, Token: token, ExpiresAt: expires}, nil
}

func (s *IdentityService) Authenticate(token string) (*domain.Identity, error) {
	return s.auth.Verify(token)
}
