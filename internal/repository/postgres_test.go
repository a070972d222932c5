package repository

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/domain"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/repository/model"
	"github.com/stretchr/testify/assert"
)

func TestToSnapshotSplitsCandidatesByRole(t *testing.T) {
	updated := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	box := &model.Mailbox{
		SessionID: "room42",
		Offer:     []byte(`{"type":"offer"}`),
		UpdatedAt: updated,
		Candidates: []model.Candidate{
			{ID: 1, Role: "creator", Payload: []byte(`"c1"`)},
			{ID: 2, Role: "partner", Payload: []byte(`"p1"`)},
			{ID: 3, Role: "creator", Payload: []byte(`"c2"`)},
		},
	}

	snap := toSnapshot(box)

	assert.JSONEq(t, `{"type":"offer"}`, string(snap.Offer))
	assert.Nil(t, snap.Answer)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`"c1"`), json.RawMessage(`"c2"`)}, snap.CreatorCandidates)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`"p1"`)}, snap.PartnerCandidates)
	assert.Equal(t, updated, snap.UpdatedAt)
	assert.Equal(t, domain.StateOfferPosted, snap.State())
}

func TestToSnapshotEmptyRow(t *testing.T) {
	snap := toSnapshot(&model.Mailbox{SessionID: "s"})

	assert.Nil(t, snap.Offer)
	assert.NotNil(t, snap.CreatorCandidates)
	assert.NotNil(t, snap.PartnerCandidates)
	assert.Equal(t, domain.StateEmpty, snap.State())
}
