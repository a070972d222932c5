package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/domain"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/metrics"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	creator = &domain.Identity{Subject: "creator-1", Name: "Creator"}
	partner = &domain.Identity{Subject: "partner-1", Name: "Partner"}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, opts SignalOptions) (*SignalService, *repository.InMemoryMailboxRepository) {
	t.Helper()
	repo := repository.NewInMemoryMailboxRepository(0)
	return NewSignalService(repo, discardLogger(), nil, opts), repo
}

func dispatch(t *testing.T, svc *SignalService, caller *domain.Identity, action, sessionID, signal, role string) (*domain.SignalResult, error) {
	t.Helper()
	req := domain.SignalRequest{Action: action, SessionID: sessionID, Role: role}
	if signal != "" {
		req.Signal = json.RawMessage(signal)
	}
	return svc.Dispatch(context.Background(), caller, req)
}

func getSignals(t *testing.T, svc *SignalService, caller *domain.Identity, sessionID string) domain.Snapshot {
	t.Helper()
	res, err := dispatch(t, svc, caller, "get_signals", sessionID, "", "")
	require.NoError(t, err)
	require.NotNil(t, res.Snapshot)
	return *res.Snapshot
}

func TestNeverSeenSessionIsEmpty(t *testing.T) {
	svc, _ := newTestService(t, SignalOptions{})

	snap := getSignals(t, svc, creator, "fresh")

	assert.Nil(t, snap.Offer)
	assert.Nil(t, snap.Answer)
	assert.Equal(t, []json.RawMessage{}, snap.CreatorCandidates)
	assert.Equal(t, []json.RawMessage{}, snap.PartnerCandidates)
	assert.Equal(t, domain.StateEmpty, snap.State())
}

func TestOfferRoundTripAndLastWriteWins(t *testing.T) {
	svc, _ := newTestService(t, SignalOptions{})

	_, err := dispatch(t, svc, creator, "send_offer", "s", `{"sdp":"p1"}`, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sdp":"p1"}`, string(getSignals(t, svc, partner, "s").Offer))

	_, err = dispatch(t, svc, creator, "offer", "s", `{"sdp":"p2"}`, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sdp":"p2"}`, string(getSignals(t, svc, partner, "s").Offer))
}

func TestCandidatesOrderedPerRole(t *testing.T) {
	svc, _ := newTestService(t, SignalOptions{})

	_, err := dispatch(t, svc, creator, "send_ice_candidate", "s", `"c1"`, "creator")
	require.NoError(t, err)
	_, err = dispatch(t, svc, creator, "ice", "s", `"c2"`, "creator")
	require.NoError(t, err)

	snap := getSignals(t, svc, creator, "s")
	assert.Equal(t, []json.RawMessage{json.RawMessage(`"c1"`), json.RawMessage(`"c2"`)}, snap.CreatorCandidates)
	assert.Empty(t, snap.PartnerCandidates)
}

func TestClearReturnsToEmpty(t *testing.T) {
	svc, _ := newTestService(t, SignalOptions{})

	_, err := dispatch(t, svc, creator, "send_offer", "s", `"o"`, "")
	require.NoError(t, err)
	_, err = dispatch(t, svc, partner, "ice", "s", `"p"`, "partner")
	require.NoError(t, err)

	res, err := dispatch(t, svc, partner, "clear", "s", "", "")
	require.NoError(t, err)
	assert.Nil(t, res.Snapshot)

	assert.Equal(t, getSignals(t, svc, creator, "never-seen"), getSignals(t, svc, creator, "s"))
}

func TestUnauthenticatedCallsDoNotMutate(t *testing.T) {
	svc, _ := newTestService(t, SignalOptions{})

	for _, caller := range []*domain.Identity{nil, {}} {
		for _, action := range []string{"send_offer", "send_answer", "ice", "get", "clear"} {
			_, err := dispatch(t, svc, caller, action, "s", `"x"`, "creator")
			assert.ErrorIs(t, err, ErrUnauthenticated, action)
		}
	}

	assert.Equal(t, domain.StateEmpty, getSignals(t, svc, creator, "s").State())
	assert.Empty(t, getSignals(t, svc, creator, "s").CreatorCandidates)
}

func TestValidationFailures(t *testing.T) {
	svc, repo := newTestService(t, SignalOptions{})

	tests := []struct {
		name    string
		action  string
		session string
		signal  string
		role    string
		want    error
	}{
		{"unknown action", "explode", "s", `"x"`, "", domain.ErrInvalidAction},
		{"empty action", "", "s", `"x"`, "", domain.ErrInvalidAction},
		{"missing session", "send_offer", "", `"x"`, "", ErrSessionIDRequired},
		{"missing session on read", "get_signals", "", "", "", ErrSessionIDRequired},
		{"missing session on clear", "clear", "", "", "", ErrSessionIDRequired},
		{"missing signal", "send_answer", "s", "", "", ErrSignalRequired},
		{"null signal", "send_offer", "s", "null", "", ErrSignalRequired},
		{"ice without role", "ice", "s", `"x"`, "", ErrRoleRequired},
		{"ice with bad role", "send_ice_candidate", "s", `"x"`, "observer", domain.ErrInvalidRole},
		{"session too long", "send_offer", string(make([]byte, 256)), `"x"`, "", ErrSessionIDTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dispatch(t, svc, creator, tt.action, tt.session, tt.signal, tt.role)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count, "rejected actions must not touch the store")
}

func TestConcurrentCandidatesAreNotLost(t *testing.T) {
	svc, _ := newTestService(t, SignalOptions{})

	const callers = 50
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			caller := &domain.Identity{Subject: fmt.Sprintf("caller-%d", i)}
			_, err := svc.Dispatch(context.Background(), caller, domain.SignalRequest{
				Action:    "send_ice_candidate",
				SessionID: "s",
				Role:      "partner",
				Signal:    json.RawMessage(fmt.Sprintf(`"cand-%d"`, i)),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap := getSignals(t, svc, creator, "s")
	assert.Len(t, snap.PartnerCandidates, callers)
	assert.Empty(t, snap.CreatorCandidates)
}

func TestEndToEndHandshake(t *testing.T) {
	svc, _ := newTestService(t, SignalOptions{})
	const room = "room42"

	_, err := dispatch(t, svc, creator, "send_offer", room, `{"type":"offer","sdp":"..."}`, "")
	require.NoError(t, err)

	snap := getSignals(t, svc, partner, room)
	assert.JSONEq(t, `{"type":"offer","sdp":"..."}`, string(snap.Offer))
	assert.Nil(t, snap.Answer)
	assert.Equal(t, domain.StateOfferPosted, snap.State())

	_, err = dispatch(t, svc, partner, "send_answer", room, `{"type":"answer","sdp":"..."}`, "")
	require.NoError(t, err)

	snap = getSignals(t, svc, creator, room)
	assert.JSONEq(t, `{"type":"answer","sdp":"..."}`, string(snap.Answer))
	assert.Equal(t, domain.StateAnswered, snap.State())

	for i := 0; i < 3; i++ {
		_, err = dispatch(t, svc, creator, "send_ice_candidate", room, fmt.Sprintf(`{"candidate":"c%d"}`, i), "creator")
		require.NoError(t, err)
		_, err = dispatch(t, svc, partner, "send_ice_candidate", room, fmt.Sprintf(`{"candidate":"p%d"}`, i), "partner")
		require.NoError(t, err)
	}

	snap = getSignals(t, svc, partner, room)
	require.Len(t, snap.CreatorCandidates, 3)
	require.Len(t, snap.PartnerCandidates, 3)
	for i := 0; i < 3; i++ {
		assert.JSONEq(t, fmt.Sprintf(`{"candidate":"c%d"}`, i), string(snap.CreatorCandidates[i]))
		assert.JSONEq(t, fmt.Sprintf(`{"candidate":"p%d"}`, i), string(snap.PartnerCandidates[i]))
	}

	_, err = dispatch(t, svc, creator, "clear", room, "", "")
	require.NoError(t, err)

	for _, caller := range []*domain.Identity{creator, partner} {
		snap = getSignals(t, svc, caller, room)
		assert.Equal(t, domain.EmptySnapshot(), snap)
	}
}

func TestIdleSessionsExpireOnRead(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	repo := repository.NewInMemoryMailboxRepository(0)
	svc := NewSignalService(repo, discardLogger(), m, SignalOptions{IdleTTL: time.Minute})

	_, err := dispatch(t, svc, creator, "offer", "s", `"o"`, "")
	require.NoError(t, err)
	assert.NotNil(t, getSignals(t, svc, partner, "s").Offer)

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	assert.Nil(t, getSignals(t, svc, partner, "s").Offer)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Expired))
}

func TestMembershipLimit(t *testing.T) {
	svc, _ := newTestService(t, SignalOptions{MaxMembers: 2})
	intruder := &domain.Identity{Subject: "intruder"}

	_, err := dispatch(t, svc, creator, "offer", "s", `"o"`, "")
	require.NoError(t, err)
	_, err = dispatch(t, svc, partner, "get", "s", "", "")
	require.NoError(t, err)

	_, err = dispatch(t, svc, intruder, "get", "s", "", "")
	assert.ErrorIs(t, err, repository.ErrSessionFull)
	_, err = dispatch(t, svc, intruder, "offer", "s", `"evil"`, "")
	assert.ErrorIs(t, err, repository.ErrSessionFull)

	assert.JSONEq(t, `"o"`, string(getSignals(t, svc, creator, "s").Offer))
}

func TestPayloadValidation(t *testing.T) {
	svc, _ := newTestService(t, SignalOptions{ValidatePayloads: true})

	_, err := dispatch(t, svc, creator, "offer", "s", `{"type":"offer","sdp":"garbage"}`, "")
	assert.ErrorIs(t, err, domain.ErrInvalidSignal)

	_, err = dispatch(t, svc, creator, "answer", "s", `{"type":"offer","sdp":"v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"}`, "")
	assert.ErrorIs(t, err, domain.ErrInvalidSignal)

	_, err = dispatch(t, svc, creator, "offer", "s", `{"type":"offer","sdp":"v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"}`, "")
	assert.NoError(t, err)

	_, err = dispatch(t, svc, creator, "ice", "s", `{"candidate":"nonsense"}`, "creator")
	assert.ErrorIs(t, err, domain.ErrInvalidSignal)

	_, err = dispatch(t, svc, creator, "ice", "s", `{"candidate":""}`, "creator")
	assert.NoError(t, err)
}

func TestRejectedWritesDoNotAdmitOrCreate(t *testing.T) {
	svc, repo := newTestService(t, SignalOptions{MaxMembers: 2, ValidatePayloads: true})
	ctx := context.Background()

	for _, caller := range []*domain.Identity{{Subject: "a"}, {Subject: "b"}, {Subject: "c"}} {
		_, err := dispatch(t, svc, caller, "offer", "s", `{"type":"offer","sdp":"garbage"}`, "")
		assert.ErrorIs(t, err, domain.ErrInvalidSignal)
		_, err = dispatch(t, svc, caller, "ice", "s", `{"candidate":"nonsense"}`, "partner")
		assert.ErrorIs(t, err, domain.ErrInvalidSignal)
		assert.ErrorIs(t, svc.SendCandidate(ctx, caller, "s", domain.Role("observer"), json.RawMessage(`{"candidate":""}`)), domain.ErrInvalidRole)
	}

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// None of the rejected callers took a member slot.
	_, err = dispatch(t, svc, creator, "ice", "s", `{"candidate":""}`, "creator")
	require.NoError(t, err)
	_, err = dispatch(t, svc, partner, "get", "s", "", "")
	require.NoError(t, err)
}

// staleReadRepository serves one outdated snapshot, as if a write landed
// between the read and the expiry check.
type staleReadRepository struct {
	*repository.InMemoryMailboxRepository
	mu    sync.Mutex
	stale bool
}

func (r *staleReadRepository) Read(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	snap, err := r.InMemoryMailboxRepository.Read(ctx, sessionID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil && r.stale {
		r.stale = false
		snap.UpdatedAt = snap.UpdatedAt.Add(-time.Hour)
	}
	return snap, err
}

func TestExpiryOnReadKeepsRefreshedSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	repo := &staleReadRepository{InMemoryMailboxRepository: repository.NewInMemoryMailboxRepository(0)}
	svc := NewSignalService(repo, discardLogger(), m, SignalOptions{IdleTTL: time.Minute})

	_, err := dispatch(t, svc, creator, "offer", "s", `"o"`, "")
	require.NoError(t, err)

	repo.stale = true
	snap := getSignals(t, svc, partner, "s")
	assert.JSONEq(t, `"o"`, string(snap.Offer))

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Zero(t, testutil.ToFloat64(m.Expired))
}

type failingRepository struct {
	repository.MailboxRepository
	err error
}

func (f failingRepository) SetOffer(context.Context, string, json.RawMessage) error {
	return f.err
}

func (f failingRepository) Read(context.Context, string) (domain.Snapshot, error) {
	return domain.Snapshot{}, f.err
}

func TestStoreErrorsPropagate(t *testing.T) {
	boom := errors.New("store unavailable")
	svc := NewSignalService(failingRepository{err: boom}, discardLogger(), nil, SignalOptions{})

	_, err := dispatch(t, svc, creator, "offer", "s", `"o"`, "")
	assert.ErrorIs(t, err, boom)

	_, err = dispatch(t, svc, creator, "get", "s", "", "")
	assert.ErrorIs(t, err, boom)
}

func TestDispatchReportsRawAction(t *testing.T) {
	svc, _ := newTestService(t, SignalOptions{})

	res, err := dispatch(t, svc, creator, "get", "s", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionGetSignals, res.Action)
	assert.Equal(t, "signals", res.SnapshotKey())

	res, err = dispatch(t, svc, creator, "get_signals", "s", "", "")
	require.NoError(t, err)
	assert.Equal(t, "data", res.SnapshotKey())
}
