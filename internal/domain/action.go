package domain

import (
	"encoding/json"
	"errors"
)

var ErrInvalidAction = errors.New("invalid action")

type Action string

const (
	ActionSendOffer     Action = "send_offer"
	ActionSendAnswer    Action = "send_answer"
	ActionSendCandidate Action = "send_ice_candidate"
	ActionGetSignals    Action = "get_signals"
	ActionClear         Action = "clear"
)

var actionAliases = map[string]Action{
	"send_offer":         ActionSendOffer,
	"offer":              ActionSendOffer,
	"send_answer":        ActionSendAnswer,
	"answer":             ActionSendAnswer,
	"send_ice_candidate": ActionSendCandidate,
	"ice":                ActionSendCandidate,
	"get_signals":        ActionGetSignals,
	"get":                ActionGetSignals,
	"clear":              ActionClear,
}

// ParseAction maps both the long and the short action vocabulary onto
// one canonical Action.
func ParseAction(raw string) (Action, error) {
	action, ok := actionAliases[raw]
	if !ok {
		return "", ErrInvalidAction
	}
	return action, nil
}

// SignalRequest is a transport-neutral action envelope.
type SignalRequest struct {
	Action    string
	SessionID string
	Signal    json.RawMessage
	Role      string
}

// SignalResult carries the outcome of a dispatched action.
// Snapshot is set only for reads.
type SignalResult struct {
	Action    Action
	RawAction string
	Snapshot  *Snapshot
}

// SnapshotKey names the response field that carries a read result:
// "signals" for the short vocabulary, "data" otherwise.
func (r *SignalResult) SnapshotKey() string {
	if r.RawAction == "get" {
		return "signals"
	}
	return "data"
}
