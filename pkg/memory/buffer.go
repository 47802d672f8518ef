package memory

import (
	"sync"
)

type bufferedTurn struct {
	turn ConversationTurn

	// summarized marks turns whose content has already been folded
	// into a persisted summary. Evicting a summarized turn is silent.
	summarized bool
}

type window struct {
	turns []bufferedTurn
}

// Buffer holds the short-term conversation windows. Each conversation
// keeps its most recent turns up to the configured capacity; appending
// beyond capacity evicts the oldest turn.
//
// The buffer serializes its own map access. Callers that need a whole
// append-summarize-append sequence to be atomic (the orchestrator)
// hold a per-conversation lock above this.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	windows  map[string]*window
}

// NewBuffer creates a buffer with the given per-conversation capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		capacity: capacity,
		windows:  make(map[string]*window),
	}
}

// Capacity returns the per-conversation window size.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Append adds a turn to its conversation window. When the window is
// full the oldest turn is evicted and returned; needsSummary is true
// when any evicted turn had not been summarized yet.
func (b *Buffer) Append(turn ConversationTurn) (evicted []ConversationTurn, needsSummary bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.windows[turn.ConversationID]
	if w == nil {
		w = &window{}
		b.windows[turn.ConversationID] = w
	}

	w.turns = append(w.turns, bufferedTurn{turn: turn})
	for len(w.turns) > b.capacity {
		old := w.turns[0]
		w.turns = w.turns[1:]
		evicted = append(evicted, old.turn)
		if !old.summarized {
			needsSummary = true
		}
	}
	return evicted, needsSummary
}

// Snapshot returns a copy of the conversation window, oldest first.
func (b *Buffer) Snapshot(conversationID string) []ConversationTurn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	w := b.windows[conversationID]
	if w == nil {
		return nil
	}
	out := make([]ConversationTurn, len(w.turns))
	for i, bt := range w.turns {
		out[i] = bt.turn
	}
	return out
}

// Pending returns the conversation's turns that have not been folded
// into a summary yet, oldest first.
func (b *Buffer) Pending(conversationID string) []ConversationTurn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	w := b.windows[conversationID]
	if w == nil {
		return nil
	}
	var out []ConversationTurn
	for _, bt := range w.turns {
		if !bt.summarized {
			out = append(out, bt.turn)
		}
	}
	return out
}

// Len returns the number of buffered turns for a conversation.
func (b *Buffer) Len(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if w := b.windows[conversationID]; w != nil {
		return len(w.turns)
	}
	return 0
}

// Has reports whether the conversation has a window, even an empty one.
// Used to decide whether a restart rehydration is needed.
func (b *Buffer) Has(conversationID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.windows[conversationID]
	return ok
}

// Rehydrate seeds a conversation window with previously logged turns,
// oldest first. Only the newest turns up to capacity are kept, and all
// of them are marked summarized so restored history is not re-compacted.
// A window that already exists is left untouched.
func (b *Buffer) Rehydrate(conversationID string, turns []ConversationTurn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.windows[conversationID]; ok {
		return
	}
	if len(turns) > b.capacity {
		turns = turns[len(turns)-b.capacity:]
	}
	w := &window{turns: make([]bufferedTurn, len(turns))}
	for i, t := range turns {
		w.turns[i] = bufferedTurn{turn: t, summarized: true}
	}
	b.windows[conversationID] = w
}

// MarkSummarized flags every currently buffered turn of the
// conversation as folded into a summary.
func (b *Buffer) MarkSummarized(conversationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w := b.windows[conversationID]; w != nil {
		for i := range w.turns {
			w.turns[i].summarized = true
		}
	}
}

// Drop discards the conversation window.
func (b *Buffer) Drop(conversationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.windows, conversationID)
}
