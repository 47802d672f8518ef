package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/mnemod/mnemod/pkg/llm"
)

const summarizerInstruction = `You compress chat conversations into structured notes.
Read the transcript and respond with a single JSON object matching this schema, and nothing else:

%s

Rules:
- topics: short noun phrases for what was discussed
- facts: durable statements about the user worth remembering
- open_threads: questions or tasks left unresolved
- omit small talk; empty arrays are fine`

const summarizerRetryNudge = "Your previous reply was not valid JSON. Respond again with only the JSON object, no prose and no code fences."

// Summarizer compacts evicted conversation turns into a structured
// Summary via the chat model.
type Summarizer struct {
	chat        llm.ChatProvider
	model       string
	instruction string
	log         storeLogger
}

// SummarizerOption configures a Summarizer.
type SummarizerOption func(*Summarizer)

// WithSummarizerLogger sets the summarizer logger.
func WithSummarizerLogger(l storeLogger) SummarizerOption {
	return func(s *Summarizer) {
		s.log = l
	}
}

// NewSummarizer creates a summarizer. model may be empty to use the
// provider's default chat model.
func NewSummarizer(chat llm.ChatProvider, model string, opts ...SummarizerOption) *Summarizer {
	s := &Summarizer{
		chat:        chat,
		model:       model,
		instruction: fmt.Sprintf(summarizerInstruction, summarySchema()),
		log:         nopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// summarySchema renders the Summary JSON schema embedded in the model
// instruction, so the contract in the prompt and the Go struct cannot
// drift apart.
func summarySchema() string {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(&Summary{})
	data, err := schema.MarshalJSON()
	if err != nil {
		// Reflecting a plain struct of string slices cannot fail at
		// runtime; keep a readable contract if it somehow does.
		return `{"topics": [], "facts": [], "open_threads": []}`
	}
	return string(data)
}

// Summarize compacts the given turns into a Summary. Malformed model
// output gets one corrective retry; a second failure falls back to an
// extractive summary built from the transcript itself. Provider errors
// are returned to the caller.
func (s *Summarizer) Summarize(ctx context.Context, turns []ConversationTurn) (*Summary, error) {
	if len(turns) == 0 {
		return &Summary{}, nil
	}

	transcript := renderTranscript(turns)
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: transcript},
	}

	resp, err := s.chat.Complete(ctx, llm.Request{
		Model:    s.model,
		System:   s.instruction,
		Messages: messages,
	})
	if err != nil {
		return nil, err
	}

	summary, parseErr := parseSummary(resp.Text)
	if parseErr == nil {
		return summary, nil
	}
	s.log.Warn("malformed summary, retrying", "provider", s.chat.Name(), "error", parseErr)

	// One corrective round trip with the bad output in context.
	messages = append(messages,
		llm.Message{Role: llm.RoleAssistant, Content: resp.Text},
		llm.Message{Role: llm.RoleUser, Content: summarizerRetryNudge},
	)
	resp, err = s.chat.Complete(ctx, llm.Request{
		Model:    s.model,
		System:   s.instruction,
		Messages: messages,
	})
	if err != nil {
		return nil, err
	}

	summary, parseErr = parseSummary(resp.Text)
	if parseErr == nil {
		return summary, nil
	}

	s.log.Error("summary malformed after retry, using extractive fallback",
		"provider", s.chat.Name(), "error", ErrMalformedSummary)
	return extractiveSummary(turns), nil
}

func renderTranscript(turns []ConversationTurn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// parseSummary accepts either a raw JSON object or one wrapped in a
// markdown code fence. All three schema fields are required; an object
// missing any of them is malformed, not an empty summary.
func parseSummary(text string) (*Summary, error) {
	payload := strings.TrimSpace(text)
	if fenced, ok := unfence(payload); ok {
		payload = fenced
	}

	if !strings.HasPrefix(payload, "{") {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedSummary)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSummary, err)
	}
	for _, key := range []string{"topics", "facts", "open_threads"} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: missing required field %q", ErrMalformedSummary, key)
		}
	}

	var summary Summary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSummary, err)
	}
	return &summary, nil
}

// unfence strips a ```json ... ``` (or bare ```) wrapper.
func unfence(text string) (string, bool) {
	if !strings.HasPrefix(text, "```") {
		return "", false
	}
	body := strings.TrimPrefix(text, "```")
	body = strings.TrimPrefix(body, "json")
	end := strings.LastIndex(body, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:end]), true
}

// extractiveSummary is the no-model fallback: it keeps the first and
// last substantive turns as facts so the window's edges survive even
// when the model cannot produce valid JSON.
func extractiveSummary(turns []ConversationTurn) *Summary {
	var texts []string
	for _, t := range turns {
		if strings.TrimSpace(t.Text) != "" {
			texts = append(texts, t.Role+": "+strings.TrimSpace(t.Text))
		}
	}
	if len(texts) == 0 {
		return &Summary{}
	}

	facts := []string{texts[0]}
	if len(texts) > 1 {
		facts = append(facts, texts[len(texts)-1])
	}
	return &Summary{Facts: facts}
}
