package domain

import "time"

// InboundEvent is one normalized user message received from a channel.
// It is immutable and consumed exactly once by the pipeline.
type InboundEvent struct {
	Channel        string    // originating channel name ("line", "telegram")
	ConversationID string    // platform conversation identifier (user, group, or room)
	Text           string    // raw message text as typed by the user
	ReplyToken     string    // opaque token pairing this event with its reply path
	EventID        string    // platform message ID, kept for audit correlation
	ReceivedAt     time.Time
}

// ReplyMessage is the outbound reply for one InboundEvent. The reply token
// must be the one carried by the triggering event, never another event's.
type ReplyMessage struct {
	ConversationID string
	ReplyToken     string
	Text           string
}

// State is the lifecycle state of one request flow. Every request reaches
// exactly one of the terminal states (replied, failed) exactly once.
type State string

const (
	StateReceived   State = "received"
	StateGrounded   State = "grounded"
	StateGenerating State = "generating"
	StateReplied    State = "replied"
	StateFailed     State = "failed"
)

// RequestOutcome records how one request flow ended. Message bodies are
// deliberately not part of the record.
type RequestOutcome struct {
	ID             string
	Channel        string
	ConversationID string
	EventID        string
	State          State
	ErrorKind      string // taxonomy label, empty on success
	LatencyMS      int64
	CreatedAt      time.Time
}
