package nlu

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/avenlabs/chat-scheduler/internal/domain/conversation"
	"github.com/avenlabs/chat-scheduler/internal/models"
)

// Result is what the extraction adapter hands back: partial,
// possibly-low-confidence field candidates, never a decision. Fallback
// marks a deterministic-only result (model disabled, timed out, or
// unparsable output).
type Result struct {
	Candidates conversation.Candidates
	Fallback   bool
}

// Extractor wraps the external understanding call. Failures of that
// call degrade to parser-only candidates; they are never raised to the
// caller.
type Extractor interface {
	Extract(ctx context.Context, message string, known models.SlotSet, now time.Time) Result
}

// Composer turns a decided action into the assistant reply. The caller
// always has a canned fallback; compose failures are not errors a turn
// cares about.
type Composer interface {
	Compose(ctx context.Context, action string, payload map[string]any, history models.MessageLog) (string, error)
}

// Adapter combines the language model with the deterministic parser.
// The parser always runs; the model is strictly best effort with a
// bounded timeout.
type Adapter struct {
	parser  Parser
	llm     *GeminiClient
	timeout time.Duration
	log     *zap.Logger
}

func NewAdapter(llm *GeminiClient, timeout time.Duration, log *zap.Logger) *Adapter {
	return &Adapter{llm: llm, timeout: timeout, log: log}
}

func (a *Adapter) Extract(ctx context.Context, message string, known models.SlotSet, now time.Time) Result {
	det := a.parser.ExtractCandidates(message, now)

	if a.llm == nil {
		return Result{Candidates: det, Fallback: true}
	}

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	llmCands, err := a.llm.ExtractSlots(cctx, message, known)
	if err != nil {
		a.log.Warn("slot extraction degraded to parser only", zap.Error(err))
		return Result{Candidates: det, Fallback: true}
	}

	merged := clampIntent(llmCands, message)

	// The deterministic parse wins ties: a regex hit on the literal
	// message outranks a model guess at the same confidence.
	for field, c := range det {
		if cur, ok := merged[field]; !ok || c.Confidence >= cur.Confidence {
			merged[field] = c
		}
	}

	return Result{Candidates: merged, Fallback: false}
}

// clampIntent enforces the adapter contract: the model may not claim a
// confident booking intent for a message with no scheduling phrasing.
func clampIntent(cands conversation.Candidates, message string) conversation.Candidates {
	c, ok := cands[conversation.FieldIntent]
	if !ok || c.Value != conversation.IntentBooking {
		return cands
	}

	msg := strings.ToLower(message)
	plausible := containsAny(msg, bookingWords) || containsAny(msg, rescheduleWords)
	if !plausible && c.Confidence > 0.55 {
		c.Confidence = 0.55
		cands[conversation.FieldIntent] = c
	}
	if IsHedged(message) && c.Confidence > 0.7 {
		c.Confidence = 0.7
		cands[conversation.FieldIntent] = c
	}
	return cands
}

var _ Extractor = (*Adapter)(nil)
