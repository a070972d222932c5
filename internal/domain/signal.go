package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/ice/v2"
	"github.com/pion/webrtc/v3"
)

var ErrInvalidSignal = errors.New("invalid signal payload")

// IsEmptyPayload reports whether a payload is absent or JSON null.
func IsEmptyPayload(p json.RawMessage) bool {
	trimmed := bytes.TrimSpace(p)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ValidateDescription checks that payload is a session description of the
// expected type carrying parseable SDP.
func ValidateDescription(payload json.RawMessage, want webrtc.SDPType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	if desc.Type != want {
		return fmt.Errorf("%w: expected %s description, got %s", ErrInvalidSignal, want, desc.Type)
	}
	if _, err := desc.Unmarshal(); err != nil {
		return fmt.Errorf("%w: sdp: %v", ErrInvalidSignal, err)
	}
	return nil
}

// ValidateCandidate checks that payload is an ICE candidate init. The empty
// candidate string marks end-of-candidates and is accepted.
func ValidateCandidate(payload json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &init); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	raw := strings.TrimPrefix(strings.TrimSpace(init.Candidate), "candidate:")
	if raw == "" {
		return nil
	}
	if _, err := ice.UnmarshalCandidate(raw); err != nil {
		return fmt.Errorf("%w: candidate: %v", ErrInvalidSignal, err)
	}
	return nil
}
