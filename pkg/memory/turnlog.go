package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const turnLogKeyPrefix = "mnemod:turns:"

// TurnLog is an optional Redis-backed append log of conversation turns.
// It exists so short-term windows survive a process restart; the buffer
// rehydrates from it on the first message of a known conversation.
type TurnLog struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTurnLog creates a turn log on the given Redis client. Keys expire
// after ttl of inactivity; ttl <= 0 disables expiry.
func NewTurnLog(client *redis.Client, ttl time.Duration) *TurnLog {
	return &TurnLog{client: client, ttl: ttl}
}

func turnLogKey(conversationID string) string {
	return turnLogKeyPrefix + conversationID
}

// Ping verifies the Redis connection.
func (l *TurnLog) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Append records a turn and refreshes the conversation's TTL.
func (l *TurnLog) Append(ctx context.Context, turn ConversationTurn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("memory: marshal turn: %w", err)
	}

	key := turnLogKey(turn.ConversationID)
	if err := l.client.RPush(ctx, key, data).Err(); err != nil {
		return &PersistenceError{Op: "turnlog_append", Err: err}
	}
	if l.ttl > 0 {
		if err := l.client.Expire(ctx, key, l.ttl).Err(); err != nil {
			return &PersistenceError{Op: "turnlog_expire", Err: err}
		}
	}
	return nil
}

// History returns every logged turn of the conversation, oldest first.
func (l *TurnLog) History(ctx context.Context, conversationID string) ([]ConversationTurn, error) {
	return l.readRange(ctx, conversationID, 0, -1)
}

// Tail returns the newest n turns of the conversation, oldest first.
func (l *TurnLog) Tail(ctx context.Context, conversationID string, n int) ([]ConversationTurn, error) {
	if n <= 0 {
		return nil, nil
	}
	return l.readRange(ctx, conversationID, int64(-n), -1)
}

func (l *TurnLog) readRange(ctx context.Context, conversationID string, start, stop int64) ([]ConversationTurn, error) {
	raw, err := l.client.LRange(ctx, turnLogKey(conversationID), start, stop).Result()
	if err != nil {
		return nil, &PersistenceError{Op: "turnlog_read", Err: err}
	}

	turns := make([]ConversationTurn, 0, len(raw))
	for _, item := range raw {
		var turn ConversationTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("memory: unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Delete drops the conversation's log. Absent logs are not an error.
func (l *TurnLog) Delete(ctx context.Context, conversationID string) error {
	if err := l.client.Del(ctx, turnLogKey(conversationID)).Err(); err != nil {
		return &PersistenceError{Op: "turnlog_delete", Err: err}
	}
	return nil
}
