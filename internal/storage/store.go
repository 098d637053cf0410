package storage

import (
	"context"
	"sort"

	"backend-playerroutes/internal/tracking"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = tracking.ErrNotFound

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Store persists session records. Listings are newest first by start time.
type Store interface {
	Save(ctx context.Context, s tracking.Session) error
	Get(ctx context.Context, id string) (tracking.Session, error)
	ByPlayer(ctx context.Context, playerID string, limit, offset int) ([]tracking.Session, error)
	ByTimeRange(ctx context.Context, from, to int64, limit, offset int) ([]tracking.Session, error)
	Active(ctx context.Context) ([]tracking.Session, error)
	All(ctx context.Context, limit, offset int) ([]tracking.Session, error)
	Count(ctx context.Context) (int, error)
	CountByPlayer(ctx context.Context, playerID string) (int, error)
	Close() error
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func page(sessions []tracking.Session, limit, offset int) []tracking.Session {
	limit, offset = normalizePage(limit, offset)
	if offset >= len(sessions) {
		return []tracking.Session{}
	}
	end := offset + limit
	if end > len(sessions) {
		end = len(sessions)
	}
	return sessions[offset:end]
}

func sortNewestFirst(sessions []tracking.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartedAt == sessions[j].StartedAt {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].StartedAt > sessions[j].StartedAt
	})
}
