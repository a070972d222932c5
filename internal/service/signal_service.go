package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/domain"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/metrics"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/repository"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

const maxSessionIDLength = 255

var (
	ErrUnauthenticated   = errors.New("unauthorized")
	ErrSessionIDRequired = errors.New("sessionId is required")
	ErrSessionIDTooLong  = errors.New("sessionId is too long")
	ErrSignalRequired    = errors.New("signal is required")
	ErrRoleRequired      = errors.New("role is required")
)

type SignalOptions struct {
	IdleTTL          time.Duration
	MaxMembers       int
	ValidatePayloads bool
}

type SignalService struct {
	mailboxes repository.MailboxRepository
	log       *slog.Logger
	metrics   *metrics.Metrics
	opts      SignalOptions
	now       func() time.Time
}

func NewSignalService(mailboxes repository.MailboxRepository, log *slog.Logger, m *metrics.Metrics, opts SignalOptions) *SignalService {
	if log == nil {
		log = slog.Default()
	}
	return &SignalService{
		mailboxes: mailboxes,
		log:       log,
		metrics:   m,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *SignalService) Dispatch(ctx context.Context, caller *domain.Identity, req domain.SignalRequest) (*domain.SignalResult, error) {
	if caller == nil || caller.Subject == "" {
		return nil, ErrUnauthenticated
	}

	action, err := domain.ParseAction(req.Action)
	if err != nil {
		s.metrics.ObserveAction("invalid", "rejected")
		return nil, err
	}

	result := &domain.SignalResult{Action: action, RawAction: req.Action}

	switch action {
	case domain.ActionSendOffer:
		err = s.SendOffer(ctx, caller, req.SessionID, req.Signal)
	case domain.ActionSendAnswer:
		err = s.SendAnswer(ctx, caller, req.SessionID, req.Signal)
	case domain.ActionSendCandidate:
		var role domain.Role
		role, err = parseRole(req.Role)
		if err == nil {
			err = s.SendCandidate(ctx, caller, req.SessionID, role, req.Signal)
		} else {
			s.metrics.ObserveAction(string(action), "rejected")
		}
	case domain.ActionGetSignals:
		var snap domain.Snapshot
		snap, err = s.GetSignals(ctx, caller, req.SessionID)
		if err == nil {
			result.Snapshot = &snap
		}
	case domain.ActionClear:
		err = s.Clear(ctx, caller, req.SessionID)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SignalService) SendOffer(ctx context.Context, caller *domain.Identity, sessionID string, payload json.RawMessage) error {
	const op = "service.signal.sendOffer"
	log := s.log.With("op", op, "session_id", sessionID)

	err := s.write(ctx, caller, sessionID, payload,
		func() error { return s.validateDescription(payload, webrtc.SDPTypeOffer) },
		func() error { return s.mailboxes.SetOffer(ctx, sessionID, payload) },
	)
	s.observe(domain.ActionSendOffer, err)
	if err != nil {
		log.Debug("offer rejected", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("offer stored", "caller", caller.Subject)
	return nil
}

func (s *SignalService) SendAnswer(ctx context.Context, caller *domain.Identity, sessionID string, payload json.RawMessage) error {
	const op = "service.signal.sendAnswer"
	log := s.log.With("op", op, "session_id", sessionID)

	err := s.write(ctx, caller, sessionID, payload,
		func() error { return s.validateDescription(payload, webrtc.SDPTypeAnswer) },
		func() error { return s.mailboxes.SetAnswer(ctx, sessionID, payload) },
	)
	s.observe(domain.ActionSendAnswer, err)
	if err != nil {
		log.Debug("answer rejected", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("answer stored", "caller", caller.Subject)
	return nil
}

func (s *SignalService) SendCandidate(ctx context.Context, caller *domain.Identity, sessionID string, role domain.Role, payload json.RawMessage) error {
	const op = "service.signal.sendCandidate"
	log := s.log.With("op", op, "session_id", sessionID, "role", string(role))

	err := s.write(ctx, caller, sessionID, payload,
		func() error {
			if _, err := domain.ParseRole(string(role)); err != nil {
				return err
			}
			if s.opts.ValidatePayloads {
				return domain.ValidateCandidate(payload)
			}
			return nil
		},
		func() error { return s.mailboxes.AppendCandidate(ctx, sessionID, role, payload) },
	)
	s.observe(domain.ActionSendCandidate, err)
	if err != nil {
		log.Debug("candidate rejected", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("candidate appended", "caller", caller.Subject)
	return nil
}

func (s *SignalService) GetSignals(ctx context.Context, caller *domain.Identity, sessionID string) (domain.Snapshot, error) {
	const op = "service.signal.getSignals"
	log := s.log.With("op", op, "session_id", sessionID)

	snap, err := s.read(ctx, caller, sessionID)
	s.observe(domain.ActionGetSignals, err)
	if err != nil {
		log.Debug("read rejected", sl.Err(err))
		return domain.Snapshot{}, fmt.Errorf("%s: %w", op, err)
	}
	return snap, nil
}

func (s *SignalService) Clear(ctx context.Context, caller *domain.Identity, sessionID string) error {
	const op = "service.signal.clear"
	log := s.log.With("op", op, "session_id", sessionID)

	err := s.checkCaller(caller, sessionID)
	if err == nil {
		err = s.admit(ctx, caller, sessionID)
	}
	if err == nil {
		err = s.mailboxes.Delete(ctx, sessionID)
	}
	s.observe(domain.ActionClear, err)
	if err != nil {
		log.Debug("clear rejected", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("session cleared", "caller", caller.Subject)
	return nil
}

func (s *SignalService) write(ctx context.Context, caller *domain.Identity, sessionID string, payload json.RawMessage, validate, store func() error) error {
	if err := s.checkCaller(caller, sessionID); err != nil {
		return err
	}
	if domain.IsEmptyPayload(payload) {
		return ErrSignalRequired
	}
	if err := validate(); err != nil {
		return err
	}
	if err := s.admit(ctx, caller, sessionID); err != nil {
		return err
	}
	return store()
}

func (s *SignalService) validateDescription(payload json.RawMessage, want webrtc.SDPType) error {
	if !s.opts.ValidatePayloads {
		return nil
	}
	return domain.ValidateDescription(payload, want)
}

func (s *SignalService) read(ctx context.Context, caller *domain.Identity, sessionID string) (domain.Snapshot, error) {
	if err := s.checkCaller(caller, sessionID); err != nil {
		return domain.Snapshot{}, err
	}
	if err := s.admit(ctx, caller, sessionID); err != nil {
		return domain.Snapshot{}, err
	}

	snap, err := s.mailboxes.Read(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	if !s.expired(snap) {
		return snap, nil
	}

	removed, err := s.mailboxes.DeleteIdle(ctx, sessionID, s.now().Add(-s.opts.IdleTTL))
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !removed {
		// A write refreshed the mailbox after our read.
		return s.mailboxes.Read(ctx, sessionID)
	}
	s.metrics.AddExpired(1)
	s.log.Info("session expired on read", "session_id", sessionID)
	return domain.EmptySnapshot(), nil
}

func (s *SignalService) expired(snap domain.Snapshot) bool {
	if s.opts.IdleTTL <= 0 || snap.UpdatedAt.IsZero() {
		return false
	}
	return s.now().Sub(snap.UpdatedAt) > s.opts.IdleTTL
}

func (s *SignalService) admit(ctx context.Context, caller *domain.Identity, sessionID string) error {
	if s.opts.MaxMembers <= 0 {
		return nil
	}
	return s.mailboxes.Admit(ctx, sessionID, caller.Subject, s.opts.MaxMembers)
}

func (s *SignalService) checkCaller(caller *domain.Identity, sessionID string) error {
	if caller == nil || caller.Subject == "" {
		return ErrUnauthenticated
	}
	if sessionID == "" {
		return ErrSessionIDRequired
	}
	if len(sessionID) > maxSessionIDLength {
		return ErrSessionIDTooLong
	}
	return nil
}

func (s *SignalService) observe(action domain.Action, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveAction(string(action), outcome)
}

func parseRole(raw string) (domain.Role, error) {
	if raw == "" {
		return "", ErrRoleRequired
	}
	return domain.ParseRole(raw)
}
