package domain

import "context"

// Fetcher downloads the grounding document's raw bytes from the document
// store, along with the reported MIME type and a source revision marker.
// Retry policy belongs to the caller, not the fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, documentID string) (data []byte, mimeType, revision string, err error)
}

// Grounding supplies the grounding document text, typically from a cache.
type Grounding interface {
	Text(ctx context.Context) (string, error)
}

// Generator produces a completion for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Replier delivers a reply on the channel the triggering event arrived on.
// Delivery is at-most-once per reply.
type Replier interface {
	Reply(ctx context.Context, msg ReplyMessage) error
}

// Handler drives one inbound event to a terminal state. Channels hand every
// normalized event to a Handler together with their own reply path.
type Handler interface {
	Handle(ctx context.Context, ev InboundEvent, rep Replier) State
}

// AuditStore persists per-request terminal outcomes.
type AuditStore interface {
	RecordOutcome(ctx context.Context, out RequestOutcome) error
	RecentOutcomes(ctx context.Context, limit int) ([]RequestOutcome, error)
	Close() error
}
