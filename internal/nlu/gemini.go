package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/avenlabs/chat-scheduler/internal/domain/conversation"
	"github.com/avenlabs/chat-scheduler/internal/models"
)

const extractionPrompt = `You extract intent and appointment booking slots from ONE user message.
Return ONLY a JSON object of this exact shape, omitting fields you are not given evidence for:
{"intent":{"value":"booking|inquiry","confidence":0.0},
 "date":{"value":"YYYY-MM-DD","confidence":0.0},
 "time":{"value":"HH:MM","confidence":0.0},
 "timezone":{"value":"IANA name or UTC","confidence":0.0},
 "service_type":{"value":"...","confidence":0.0}}
Confidence is 0..1. Do NOT invent a date, time or timezone.
Ambiguous phrasing ("maybe Tuesday", "sometime next week") must use confidence below 0.5.
Only output intent "booking" when the message plausibly asks to schedule something.

Message: %s
Known slots: %s`

const composePrompt = `You are a concise appointment booking assistant.
Follow the requested ACTION, use the CONTEXT, ask at most one question,
never invent a date or time, and when proposing alternatives list at most two.

ACTION meanings:
- ask_intent: ask whether the user wants to book an appointment
- ask_date: request a date
- ask_time: request a time
- ask_timezone: request a timezone
- ask_service_type: request the kind of appointment
- general_chat: respond conversationally, then offer booking help
- cancelled: confirm cancellation
- booked: confirm the booking
- conflict: say the slot is taken and propose the alternatives
- view_booking: summarize the latest booking or say none exists
- invalid_datetime: ask for date and time again
- outside_rules: explain the business-hours rule (weekdays 09:00-17:00 UTC, on the hour)

Conversation so far:
%s

ACTION: %s
CONTEXT_JSON: %s
Write the assistant reply.`

type fieldGuess struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type slotExtraction struct {
	Intent      *fieldGuess `json:"intent"`
	Date        *fieldGuess `json:"date"`
	Time        *fieldGuess `json:"time"`
	Timezone    *fieldGuess `json:"timezone"`
	ServiceType *fieldGuess `json:"service_type"`
}

// GeminiClient is the external understanding collaborator. Extraction
// uses JSON-mode at temperature zero; reply composition runs slightly
// warmer.
type GeminiClient struct {
	extractModel *genai.GenerativeModel
	composeModel *genai.GenerativeModel
}

func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	extract := client.GenerativeModel(modelName)
	extract.ResponseMIMEType = "application/json"
	extract.SetTemperature(0)

	compose := client.GenerativeModel(modelName)
	compose.SetTemperature(0.2)

	return &GeminiClient{extractModel: extract, composeModel: compose}, nil
}

func (g *GeminiClient) ExtractSlots(ctx context.Context, message string, known models.SlotSet) (conversation.Candidates, error) {
	knownJSON, _ := json.Marshal(known.Fields)

	text, err := generate(ctx, g.extractModel, fmt.Sprintf(extractionPrompt, message, string(knownJSON)))
	if err != nil {
		return nil, err
	}

	var parsed slotExtraction
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("unparsable extraction output: %w", err)
	}

	cands := conversation.Candidates{}
	put := func(field string, g *fieldGuess) {
		if g == nil || strings.TrimSpace(g.Value) == "" {
			return
		}
		cands[field] = conversation.Candidate{Value: strings.TrimSpace(g.Value), Confidence: g.Confidence}
	}
	put(conversation.FieldIntent, parsed.Intent)
	put(conversation.FieldDate, parsed.Date)
	put(conversation.FieldTime, parsed.Time)
	put(conversation.FieldTimezone, parsed.Timezone)
	put(conversation.FieldServiceType, parsed.ServiceType)

	return cands, nil
}

func (g *GeminiClient) Compose(ctx context.Context, action string, payload map[string]any, history models.MessageLog) (string, error) {
	ctxJSON, _ := json.Marshal(payload)

	var sb strings.Builder
	for _, m := range history {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}

	text, err := generate(ctx, g.composeModel, fmt.Sprintf(composePrompt, sb.String(), action, string(ctxJSON)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func generate(ctx context.Context, model *genai.GenerativeModel, prompt string) (string, error) {
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			sb.WriteString(string(textPart))
		}
	}
	return sb.String(), nil
}

var _ Composer = (*GeminiClient)(nil)
