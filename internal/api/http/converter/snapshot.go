package converter

import (
	"encoding/json"
	"time"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/domain"
)

type SnapshotResponse struct {
	Offer             json.RawMessage   `json:"offer"`
	Answer            json.RawMessage   `json:"answer"`
	CreatorCandidates []json.RawMessage `json:"creatorCandidates"`
	PartnerCandidates []json.RawMessage `json:"partnerCandidates"`
	State             string            `json:"state"`
}

// SnapshotToApi renders absent offer/answer as null and candidate lists as
// arrays, never null.
func SnapshotToApi(s *domain.Snapshot) *SnapshotResponse {
	if s == nil {
		empty := domain.EmptySnapshot()
		s = &empty
	}

	resp := &SnapshotResponse{
		CreatorCandidates: make([]json.RawMessage, 0, len(s.CreatorCandidates)),
		PartnerCandidates: make([]json.RawMessage, 0, len(s.PartnerCandidates)),
		State:             string(s.State()),
	}
	if !domain.IsEmptyPayload(s.Offer) {
		resp.Offer = s.Offer
	}
	if !domain.IsEmptyPayload(s.Answer) {
		resp.Answer = s.Answer
	}
	resp.CreatorCandidates = append(resp.CreatorCandidates, s.CreatorCandidates...)
	resp.PartnerCandidates = append(resp.PartnerCandidates, s.PartnerCandidates...)
	return resp
}

type IdentityResponse struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
	IsGuest bool   `json:"is_guest"`
}

type GuestTokenResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Identity  IdentityResponse `json:"identity"`
}

func GuestTokenToApi(token string, expiresAt time.Time, identity *domain.Identity) *GuestTokenResponse {
	return &GuestTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Identity: IdentityResponse{
			Subject: identity.Subject,
			Name:    identity.Name,
			IsGuest: identity.IsGuest,
		},
	}
}
