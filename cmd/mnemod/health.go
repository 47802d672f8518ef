package main

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"

	"github.com/mnemod/mnemod/pkg/memory"
	"github.com/mnemod/mnemod/pkg/version"
)

// serviceHealth backs the health probe endpoints. Liveness is the
// process being up; readiness additionally requires the storage
// backends to respond.
type serviceHealth struct {
	db       *badger.DB
	redis    *redis.Client
	provider string
	index    memory.Index
}

func (h *serviceHealth) IsHealthy() bool {
	return true
}

func (h *serviceHealth) IsReady() bool {
	if h.db != nil && h.db.IsClosed() {
		return false
	}
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.redis.Ping(ctx).Err(); err != nil {
			return false
		}
	}
	return true
}

func (h *serviceHealth) GetStatus() map[string]interface{} {
	status := map[string]interface{}{
		"service":  "mnemod",
		"version":  version.Version,
		"provider": h.provider,
		"ready":    h.IsReady(),
	}
	if h.db != nil {
		storage := "ok"
		if h.db.IsClosed() {
			storage = "closed"
		}
		status["storage"] = storage
	}
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		turnLog := "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			turnLog = "unreachable"
		}
		status["turn_log"] = turnLog
	}
	if h.index != nil {
		status["vector_entries"] = h.index.Len()
	}
	return status
}
