package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/domain"
)

type mailboxEntry struct {
	mu      sync.Mutex
	box     *domain.Mailbox
	removed bool
}

// InMemoryMailboxRepository locks each mailbox separately from the map.
type InMemoryMailboxRepository struct {
	mu          sync.RWMutex
	entries     map[string]*mailboxEntry
	maxSessions int
	now         func() time.Time
}

func NewInMemoryMailboxRepository(maxSessions int) *InMemoryMailboxRepository {
	return &InMemoryMailboxRepository{
		entries:     make(map[string]*mailboxEntry),
		maxSessions: maxSessions,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryMailboxRepository) SetOffer(ctx context.Context, sessionID string, payload json.RawMessage) error {
	return r.update(ctx, sessionID, func(box *domain.Mailbox) error {
		box.SetOffer(payload)
		return nil
	})
}

func (r *InMemoryMailboxRepository) SetAnswer(ctx context.Context, sessionID string, payload json.RawMessage) error {
	return r.update(ctx, sessionID, func(box *domain.Mailbox) error {
		box.SetAnswer(payload)
		return nil
	})
}

func (r *InMemoryMailboxRepository) AppendCandidate(ctx context.Context, sessionID string, role domain.Role, payload json.RawMessage) error {
	return r.update(ctx, sessionID, func(box *domain.Mailbox) error {
		box.AppendCandidate(role, payload)
		return nil
	})
}

func (r *InMemoryMailboxRepository) Admit(ctx context.Context, sessionID string, subject string, limit int) error {
	return r.update(ctx, sessionID, func(box *domain.Mailbox) error {
		if _, ok := box.Members[subject]; ok {
			return nil
		}
		if limit > 0 && len(box.Members) >= limit {
			return ErrSessionFull
		}
		box.Members[subject] = struct{}{}
		return nil
	})
}

func (r *InMemoryMailboxRepository) Read(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}

	r.mu.RLock()
	entry, ok := r.entries[sessionID]
	r.mu.RUnlock()
	if !ok {
		return domain.EmptySnapshot(), nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed {
		return domain.EmptySnapshot(), nil
	}
	return entry.box.Snapshot(), nil
}

func (r *InMemoryMailboxRepository) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[sessionID]
	if !ok {
		return nil
	}
	r.removeLocked(sessionID, entry)
	return nil
}

func (r *InMemoryMailboxRepository) DeleteIdle(ctx context.Context, sessionID string, idleBefore time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[sessionID]
	if !ok {
		return false, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.box.IdleSince(idleBefore) {
		return false, nil
	}
	entry.removed = true
	delete(r.entries, sessionID)
	return true, nil
}

func (r *InMemoryMailboxRepository) Sweep(ctx context.Context, idleBefore time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, entry := range r.entries {
		entry.mu.Lock()
		idle := entry.box.IdleSince(idleBefore)
		entry.mu.Unlock()
		if !idle {
			continue
		}
		r.removeLocked(id, entry)
		removed++
	}
	return removed, nil
}

func (r *InMemoryMailboxRepository) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), nil
}

// update retries when the entry was removed between lookup and lock.
func (r *InMemoryMailboxRepository) update(ctx context.Context, sessionID string, fn func(*domain.Mailbox) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry, err := r.getOrCreate(sessionID)
		if err != nil {
			return err
		}

		entry.mu.Lock()
		if entry.removed {
			entry.mu.Unlock()
			continue
		}
		err = fn(entry.box)
		if err == nil {
			entry.box.UpdatedAt = r.now()
		}
		entry.mu.Unlock()
		return err
	}
}

func (r *InMemoryMailboxRepository) getOrCreate(sessionID string) (*mailboxEntry, error) {
	r.mu.RLock()
	entry, ok := r.entries[sessionID]
	r.mu.RUnlock()
	if ok {
		return entry, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[sessionID]; ok {
		return entry, nil
	}
	if r.maxSessions > 0 && len(r.entries) >= r.maxSessions {
		return nil, ErrCapacityExceeded
	}

	entry = &mailboxEntry{box: domain.NewMailbox(sessionID, r.now())}
	r.entries[sessionID] = entry
	return entry, nil
}

// removeLocked must be called with r.mu held.
func (r *InMemoryMailboxRepository) removeLocked(sessionID string, entry *mailboxEntry) {
	entry.mu.Lock()
	entry.removed = true
	entry.mu.Unlock()
	delete(r.entries, sessionID)
}
