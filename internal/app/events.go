package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
)

// EventType names the outbound events of the relay protocol. The wire
// encoding is JSON regardless of transport.
type EventType string

const (
	EvtJoinSuccess EventType = "joinSuccess"
	EvtJoinError   EventType = "joinError"
	EvtMessage     EventType = "message"
	EvtTyping      EventType = "typing"
	EvtStopTyping  EventType = "stopTyping"
	EvtUserList    EventType = "userList"
)

// Reasons reported on joinError. The texts are part of the protocol;
// the web client displays them verbatim.
const (
	ReasonFieldsRequired = "Room name and username are required!"
	ReasonNameTaken      = "Username already taken in this room."
	ReasonAlreadyJoined  = "Already joined a room."
)

// Event is one outbound protocol event. Only the fields relevant to
// the Type are set.
type Event struct {
	Type     EventType `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Line     string    `json:"line,omitempty"`
	Identity string    `json:"identity,omitempty"`
	Users    []string  `json:"users,omitempty"`
}

func encode(e Event) (core.Frame, bool) {
	b, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broker").Msg("event marshal")
		return nil, false
	}
	return core.Frame(b), true
}
