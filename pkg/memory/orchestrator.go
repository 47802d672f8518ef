package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnemod/mnemod/pkg/llm"
)

const defaultSystemPrompt = "You are a helpful assistant with long-term memory of the user you are talking to. Use what you remember naturally; do not recite it."

// ChatRequest is a single inbound chat message.
type ChatRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`

	// Model overrides the provider's default model for this turn.
	Model string `json:"model,omitempty"`

	// UseMemory controls long-term retrieval. Nil means enabled.
	UseMemory *bool `json:"use_memory,omitempty"`

	// SystemMessage overrides the configured system prompt for this turn.
	SystemMessage string `json:"system_message,omitempty"`
}

func (r *ChatRequest) useMemory() bool {
	return r.UseMemory == nil || *r.UseMemory
}

// UsedMemory describes a memory that was included in the prompt.
type UsedMemory struct {
	ID       string  `json:"id"`
	Category string  `json:"category"`
	Distance float64 `json:"distance"`
}

// ChatResponse is the assistant reply plus what went into producing it.
type ChatResponse struct {
	ConversationID string       `json:"conversation_id"`
	Reply          string       `json:"reply"`
	Model          string       `json:"model"`
	UsedMemories   []UsedMemory `json:"used_memories,omitempty"`
	InputTokens    int64        `json:"input_tokens"`
	OutputTokens   int64        `json:"output_tokens"`
	CreatedAt      time.Time    `json:"created_at"`

	// Degraded is set when the prompt had to be reduced to the system
	// prompt and the bare user message to fit the budget.
	Degraded bool `json:"degraded,omitempty"`
}

// OrchestratorConfig carries the prompt assembly knobs.
type OrchestratorConfig struct {
	// RetrievalLimit caps how many memories are retrieved per turn.
	RetrievalLimit int

	// ContextBudget is the total token budget for one request.
	ContextBudget int

	// ResponseReserve is held back from the budget for the reply.
	ResponseReserve int

	// SystemPrompt overrides the default assistant instruction.
	SystemPrompt string
}

// Orchestrator runs the full chat turn: retrieve memories, assemble a
// budgeted prompt, call the model, and persist what the turn produced.
type Orchestrator struct {
	store      *Store
	buffer     *Buffer
	budgeter   *Budgeter
	summarizer *Summarizer
	chat       llm.ChatProvider
	turnLog    *TurnLog // nil when the turn log is disabled
	cfg        OrchestratorConfig
	log        storeLogger

	// convMu serializes turns per conversation so two concurrent
	// messages cannot interleave buffer eviction and summarization.
	mu     sync.Mutex
	convMu map[string]*sync.Mutex
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithTurnLog enables Redis-backed turn persistence.
func WithTurnLog(tl *TurnLog) OrchestratorOption {
	return func(o *Orchestrator) {
		o.turnLog = tl
	}
}

// WithOrchestratorLogger sets the orchestrator logger.
func WithOrchestratorLogger(l storeLogger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// NewOrchestrator wires the memory components into a chat pipeline.
func NewOrchestrator(store *Store, buffer *Buffer, summarizer *Summarizer, chat llm.ChatProvider, cfg OrchestratorConfig, opts ...OrchestratorOption) *Orchestrator {
	if cfg.RetrievalLimit <= 0 {
		cfg.RetrievalLimit = 5
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = 4000
	}
	if cfg.ResponseReserve < 0 {
		cfg.ResponseReserve = 0
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	o := &Orchestrator{
		store:      store,
		buffer:     buffer,
		budgeter:   NewBudgeter(),
		summarizer: summarizer,
		chat:       chat,
		cfg:        cfg,
		log:        nopLogger{},
		convMu:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) lockConversation(id string) *sync.Mutex {
	o.mu.Lock()
	mu, ok := o.convMu[id]
	if !ok {
		mu = &sync.Mutex{}
		o.convMu[id] = mu
	}
	o.mu.Unlock()
	mu.Lock()
	return mu
}

// Chat runs one conversation turn.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ErrInvalidUserID
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrInvalidQuery
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	mu := o.lockConversation(conversationID)
	defer mu.Unlock()

	o.rehydrate(ctx, conversationID)

	// Retrieval failures degrade the turn rather than failing it.
	var memories []RecallResult
	if req.useMemory() {
		recalled, err := o.store.Recall(ctx, req.UserID, message, o.cfg.RetrievalLimit)
		if err != nil {
			o.log.Warn("memory retrieval failed, continuing without memories",
				"conversation_id", conversationID, "error", err)
		} else {
			memories = recalled
		}
	}

	userTurn := ConversationTurn{
		ConversationID: conversationID,
		Role:           RoleUser,
		Text:           message,
		Timestamp:      time.Now().UTC(),
	}
	history := o.buffer.Snapshot(conversationID)

	systemPrompt := o.cfg.SystemPrompt
	if req.SystemMessage != "" {
		systemPrompt = req.SystemMessage
	}

	prompt, used, degraded := o.assemble(systemPrompt, message, history, memories)
	prompt.Model = req.Model
	if degraded {
		o.log.Warn("context budget exceeded, degrading to bare prompt",
			"conversation_id", conversationID, "error", ErrBudgetExceeded)
	}

	resp, err := o.chat.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	assistantTurn := ConversationTurn{
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Text:           resp.Text,
		Timestamp:      time.Now().UTC(),
	}

	evicted, needsSummary := o.appendTurns(ctx, userTurn, assistantTurn)
	if needsSummary {
		o.compact(ctx, req.UserID, conversationID, evicted)
	}

	return &ChatResponse{
		ConversationID: conversationID,
		Reply:          resp.Text,
		Model:          resp.Model,
		UsedMemories:   used,
		InputTokens:    int64(resp.InputTokens),
		OutputTokens:   int64(resp.OutputTokens),
		CreatedAt:      assistantTurn.Timestamp,
		Degraded:       degraded,
	}, nil
}

// rehydrate seeds the buffer from the turn log after a restart.
func (o *Orchestrator) rehydrate(ctx context.Context, conversationID string) {
	if o.turnLog == nil || o.buffer.Has(conversationID) {
		return
	}
	turns, err := o.turnLog.Tail(ctx, conversationID, o.buffer.Capacity())
	if err != nil {
		o.log.Warn("turn log rehydration failed", "conversation_id", conversationID, "error", err)
		return
	}
	if len(turns) > 0 {
		o.buffer.Rehydrate(conversationID, turns)
		o.log.Debug("conversation rehydrated", "conversation_id", conversationID, "turns", len(turns))
	}
}

// assemble builds the provider request within the context budget.
// Inclusion priority is recent turns first (newest to oldest), then
// memories ascending by distance; the rendered prompt keeps its natural
// order of system, memories, history, current message.
func (o *Orchestrator) assemble(systemPrompt, message string, history []ConversationTurn, memories []RecallResult) (llm.Request, []UsedMemory, bool) {
	available := o.cfg.ContextBudget - o.cfg.ResponseReserve

	baseCost := o.budgeter.Cost(systemPrompt) + o.budgeter.Cost(message)
	if baseCost > available {
		// Not even the mandatory parts fit. Send them anyway rather
		// than failing the turn.
		return llm.Request{
			System:   systemPrompt,
			Messages: []llm.Message{{Role: llm.RoleUser, Content: message}},
		}, nil, true
	}
	remaining := available - baseCost

	candidates := make([]Block, 0, len(history)+len(memories))
	for i := len(history) - 1; i >= 0; i-- {
		candidates = append(candidates, Block{
			Key:  fmt.Sprintf("turn:%d", i),
			Text: history[i].Text,
		})
	}
	for i, m := range memories {
		candidates = append(candidates, Block{
			Key:  fmt.Sprintf("mem:%d", i),
			Text: m.Record.Content,
		})
	}

	kept := o.budgeter.Fit(candidates, remaining)
	keptKeys := make(map[string]bool, len(kept))
	for _, blk := range kept {
		keptKeys[blk.Key] = true
	}

	var memoryLines []string
	var used []UsedMemory
	for i, m := range memories {
		if !keptKeys[fmt.Sprintf("mem:%d", i)] {
			continue
		}
		memoryLines = append(memoryLines, "- "+m.Record.Content)
		used = append(used, UsedMemory{
			ID:       m.Record.ID,
			Category: m.Record.Category,
			Distance: m.Distance,
		})
	}

	system := systemPrompt
	if len(memoryLines) > 0 {
		system += "\n\nWhat you remember about this user:\n" + strings.Join(memoryLines, "\n")
	}

	var turnIdx []int
	for i := range history {
		if keptKeys[fmt.Sprintf("turn:%d", i)] {
			turnIdx = append(turnIdx, i)
		}
	}
	sort.Ints(turnIdx)

	messages := make([]llm.Message, 0, len(turnIdx)+1)
	for _, i := range turnIdx {
		role := llm.RoleUser
		if history[i].Role == RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: history[i].Text})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	return llm.Request{System: system, Messages: messages}, used, false
}

// appendTurns adds both turns of a completed exchange to the buffer and
// the turn log, collecting evictions across the pair.
func (o *Orchestrator) appendTurns(ctx context.Context, turns ...ConversationTurn) (evicted []ConversationTurn, needsSummary bool) {
	for _, turn := range turns {
		ev, ns := o.buffer.Append(turn)
		evicted = append(evicted, ev...)
		needsSummary = needsSummary || ns

		if o.turnLog != nil {
			if err := o.turnLog.Append(ctx, turn); err != nil {
				o.log.Warn("turn log append failed",
					"conversation_id", turn.ConversationID, "error", err)
			}
		}
	}
	return evicted, needsSummary
}

// compact summarizes the evicted turns together with the live window's
// not-yet-summarized turns and persists the result as a summary memory.
// On success all buffered turns are marked so the same content is not
// compacted twice.
func (o *Orchestrator) compact(ctx context.Context, userID, conversationID string, evicted []ConversationTurn) {
	turns := append(evicted, o.buffer.Pending(conversationID)...)
	o.saveSummary(ctx, userID, conversationID, turns)
}

func (o *Orchestrator) saveSummary(ctx context.Context, userID, conversationID string, turns []ConversationTurn) {
	if len(turns) == 0 {
		return
	}

	summary, err := o.summarizer.Summarize(ctx, turns)
	if err != nil {
		o.log.Error("summarization failed", "conversation_id", conversationID, "error", err)
		return
	}
	if summary.Empty() {
		o.buffer.MarkSummarized(conversationID)
		return
	}

	content, err := json.Marshal(summary)
	if err != nil {
		o.log.Error("summary encode failed", "conversation_id", conversationID, "error", err)
		return
	}

	if _, err := o.store.Save(ctx, userID, string(content), CategorySummary, nil, "conversation:"+conversationID); err != nil {
		o.log.Error("summary persist failed", "conversation_id", conversationID, "error", err)
		return
	}
	o.buffer.MarkSummarized(conversationID)
	o.log.Debug("conversation compacted", "conversation_id", conversationID, "turns", len(turns))
}

// History returns the buffered turns of a conversation, oldest first.
// With a turn log enabled the full logged history is returned instead.
func (o *Orchestrator) History(ctx context.Context, conversationID string) ([]ConversationTurn, error) {
	if o.turnLog != nil {
		return o.turnLog.History(ctx, conversationID)
	}
	return o.buffer.Snapshot(conversationID), nil
}

// EndConversation flushes the remaining window into a summary memory
// and discards the conversation state.
func (o *Orchestrator) EndConversation(ctx context.Context, userID, conversationID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}

	mu := o.lockConversation(conversationID)
	defer mu.Unlock()

	o.rehydrate(ctx, conversationID)
	o.saveSummary(ctx, userID, conversationID, o.buffer.Pending(conversationID))

	o.buffer.Drop(conversationID)
	if o.turnLog != nil {
		if err := o.turnLog.Delete(ctx, conversationID); err != nil {
			o.log.Warn("turn log delete failed", "conversation_id", conversationID, "error", err)
		}
	}

	o.mu.Lock()
	delete(o.convMu, conversationID)
	o.mu.Unlock()
	return nil
}

// Store exposes the structured memory store for the memory API surface.
func (o *Orchestrator) Store() *Store {
	return o.store
}
