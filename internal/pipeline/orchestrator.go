// Package pipeline drives one inbound event through grounding, prompt
// assembly, generation, and reply delivery. Every event reaches exactly one
// terminal state, and the user always receives a reply unless the webhook
// signature itself was invalid.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"groundbot/internal/boterr"
	"groundbot/internal/config"
	"groundbot/internal/domain"
	"groundbot/internal/metrics"
	"groundbot/internal/prompt"

	"github.com/google/uuid"
)

// Orchestrator ties the document cache, prompt builder, and generation
// client together per inbound event.
type Orchestrator struct {
	grounding domain.Grounding
	builder   *prompt.Builder
	generator domain.Generator
	replies   config.Replies
	audit     domain.AuditStore // optional
	metrics   *metrics.Metrics  // optional
	logger    *slog.Logger
}

type Config struct {
	Grounding domain.Grounding
	Builder   *prompt.Builder
	Generator domain.Generator
	Replies   config.Replies
	Audit     domain.AuditStore
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		grounding: cfg.Grounding,
		builder:   cfg.Builder,
		generator: cfg.Generator,
		replies:   cfg.Replies,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// Handle drives one event to its terminal state and records the outcome.
func (o *Orchestrator) Handle(ctx context.Context, ev domain.InboundEvent, rep domain.Replier) domain.State {
	start := time.Now()
	requestID := uuid.NewString()
	log := o.logger.With("request_id", requestID, "channel", ev.Channel)

	log.Info("request received", "conversation", ev.ConversationID, "text_len", len(ev.Text))

	state, cause := o.run(ctx, ev, rep, log)
	latency := time.Since(start)

	o.metrics.ObserveRequest(ev.Channel, string(state), latency)
	o.record(ctx, domain.RequestOutcome{
		ID:             requestID,
		Channel:        ev.Channel,
		ConversationID: ev.ConversationID,
		EventID:        ev.EventID,
		State:          state,
		ErrorKind:      boterr.Kind(cause),
		LatencyMS:      latency.Milliseconds(),
		CreatedAt:      time.Now(),
	}, log)

	log.Info("request finished", "state", state, "latency_ms", latency.Milliseconds())
	return state
}

// run advances the per-request state machine:
// received → grounded → generating → replied, or → failed.
func (o *Orchestrator) run(ctx context.Context, ev domain.InboundEvent, rep domain.Replier, log *slog.Logger) (domain.State, error) {
	groundingText, err := o.grounding.Text(ctx)
	if err != nil {
		log.Error("grounding unavailable", "error", err)
		o.dispatch(ctx, ev, rep, o.replies.NoGrounding, log)
		return domain.StateFailed, err
	}
	log.Debug("state transition", "state", domain.StateGrounded, "grounding_len", len(groundingText))

	assembled, err := o.builder.Build(groundingText, ev.Text)
	if err != nil {
		// Only possible when even full truncation cannot fit the user text.
		log.Error("prompt build failed", "error", err)
		o.dispatch(ctx, ev, rep, o.replies.Fallback, log)
		return domain.StateFailed, err
	}
	log.Debug("state transition", "state", domain.StateGenerating, "prompt_len", len(assembled))

	genStart := time.Now()
	answer, err := o.generator.Generate(ctx, assembled)
	o.metrics.ObserveGeneration(time.Since(genStart))
	if err != nil {
		// Whatever the kind, the user still gets a reply.
		log.Error("generation failed", "kind", boterr.Kind(err), "error", err)
		o.dispatch(ctx, ev, rep, o.replies.Fallback, log)
		return domain.StateFailed, err
	}

	if err := o.dispatch(ctx, ev, rep, answer, log); err != nil {
		return domain.StateFailed, err
	}
	return domain.StateReplied, nil
}

// dispatch delivers text on the event's own reply token. Delivery failures
// are logged and counted; no retry follows.
func (o *Orchestrator) dispatch(ctx context.Context, ev domain.InboundEvent, rep domain.Replier, text string, log *slog.Logger) error {
	err := rep.Reply(ctx, domain.ReplyMessage{
		ConversationID: ev.ConversationID,
		ReplyToken:     ev.ReplyToken,
		Text:           text,
	})
	if err != nil {
		o.metrics.DeliveryFailure()
		log.Error("reply delivery failed", "error", err)
	}
	return err
}

func (o *Orchestrator) record(ctx context.Context, out domain.RequestOutcome, log *slog.Logger) {
	if o.audit == nil {
		return
	}
	if err := o.audit.RecordOutcome(ctx, out); err != nil {
		log.Error("audit record failed", "error", err)
	}
}
