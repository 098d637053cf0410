package storage

import (
	"context"
	"errors"
	"fmt"

	"backend-playerroutes/internal/db"
	"backend-playerroutes/internal/tracking"

	"github.com/jackc/pgx/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS player_sessions (
	id           TEXT PRIMARY KEY,
	player_uuid  TEXT NOT NULL,
	player_name  TEXT NOT NULL,
	started_at   BIGINT NOT NULL,
	ended_at     BIGINT,
	active       BOOLEAN NOT NULL,
	last_seen_at BIGINT NOT NULL,
	samples      INTEGER NOT NULL DEFAULT 0,
	distance_xz  DOUBLE PRECISION NOT NULL DEFAULT 0,
	path         JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS player_sessions_player_idx ON player_sessions (player_uuid, started_at DESC);
CREATE INDEX IF NOT EXISTS player_sessions_started_idx ON player_sessions (started_at DESC);
`

const selectColumns = `id, player_uuid, player_name, started_at, COALESCE(ended_at, 0), active, last_seen_at, samples, distance_xz, path`

// PostgresStore keeps sessions in the player_sessions table.
type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, schema)
	return err
}

func (p *PostgresStore) Save(ctx context.Context, s tracking.Session) error {
	path, err := tracking.EncodePath(s.Path)
	if err != nil {
		return err
	}
	var endedAt *int64
	if s.EndedAt != nil {
		v := *s.EndedAt
		endedAt = &v
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO player_sessions (id, player_uuid, player_name, started_at, ended_at, active, last_seen_at, samples, distance_xz, path)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			ended_at=EXCLUDED.ended_at, active=EXCLUDED.active, last_seen_at=EXCLUDED.last_seen_at,
			samples=EXCLUDED.samples, distance_xz=EXCLUDED.distance_xz, path=EXCLUDED.path
	`, s.ID, s.PlayerID, s.PlayerName, s.StartedAt, endedAt, s.Active, s.LastSeenAt, s.Stats.Samples, s.Stats.DistanceXZ, path)
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (tracking.Session, error) {
	row := p.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM player_sessions WHERE id=$1`, id)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return tracking.Session{}, ErrNotFound
	}
	return s, err
}

func (p *PostgresStore) ByPlayer(ctx context.Context, playerID string, limit, offset int) ([]tracking.Session, error) {
	limit, offset = normalizePage(limit, offset)
	return p.list(ctx, `
		SELECT `+selectColumns+` FROM player_sessions
		WHERE player_uuid=$1
		ORDER BY started_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, playerID, limit, offset)
}

func (p *PostgresStore) ByTimeRange(ctx context.Context, from, to int64, limit, offset int) ([]tracking.Session, error) {
	limit, offset = normalizePage(limit, offset)
	return p.list(ctx, `
		SELECT `+selectColumns+` FROM player_sessions
		WHERE started_at BETWEEN $1 AND $2
		ORDER BY started_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, from, to, limit, offset)
}

func (p *PostgresStore) Active(ctx context.Context) ([]tracking.Session, error) {
	return p.list(ctx, `
		SELECT `+selectColumns+` FROM player_sessions
		WHERE active
		ORDER BY started_at DESC, id DESC
	`)
}

func (p *PostgresStore) All(ctx context.Context, limit, offset int) ([]tracking.Session, error) {
	limit, offset = normalizePage(limit, offset)
	return p.list(ctx, `
		SELECT `+selectColumns+` FROM player_sessions
		ORDER BY started_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (p *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM player_sessions`).Scan(&n)
	return n, err
}

func (p *PostgresStore) CountByPlayer(ctx context.Context, playerID string) (int, error) {
	var n int
	err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM player_sessions WHERE player_uuid=$1`, playerID).Scan(&n)
	return n, err
}

// Close is a no-op; the pool is owned by the caller.
func (p *PostgresStore) Close() error {
	return nil
}

func (p *PostgresStore) list(ctx context.Context, sql string, args ...any) ([]tracking.Session, error) {
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []tracking.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (tracking.Session, error) {
	var (
		s       tracking.Session
		endedAt int64
		path    []byte
	)
	if err := row.Scan(&s.ID, &s.PlayerID, &s.PlayerName, &s.StartedAt, &endedAt, &s.Active, &s.LastSeenAt, &s.Stats.Samples, &s.Stats.DistanceXZ, &path); err != nil {
		return tracking.Session{}, err
	}
	if endedAt != 0 {
		s.EndedAt = &endedAt
	}
	s.Path = []tracking.RoutePoint{}
	if len(path) > 0 {
		decoded, err := tracking.DecodePath(path)
		if err != nil {
			return tracking.Session{}, fmt.Errorf("decode path of %s: %w", s.ID, err)
		}
		s.Path = decoded
	}
	return s, nil
}
