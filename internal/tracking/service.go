package tracking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"backend-playerroutes/internal/tiles"
	"backend-playerroutes/internal/world"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ticksPerTileWarm   = 40  // 2s at 20 TPS
	ticksPerTimeUpdate = 100 // 5s at 20 TPS
)

// Store is the persistence the tracker needs.
type Store interface {
	Save(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Active(ctx context.Context) ([]Session, error)
}

// Publisher receives lifecycle and point events for fan-out.
type Publisher interface {
	SessionStarted(s Session)
	SessionEnded(s Session)
	RoutePoint(s Session, p RoutePoint, worldTime int64)
	WorldTime(ticks int64)
}

// TileWarmer queues renders around a tracked player.
type TileWarmer interface {
	Warm(center tiles.Key)
}

type Clock interface {
	WorldTime() (int64, bool)
}

type Options struct {
	SampleIntervalMs    int
	MinMoveBlocks       int
	MaxIdleIntervalMs   int
	MaxPointsPerSession int
}

// Reason records why a sample was kept.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonFirstPoint
	ReasonMoved
	ReasonRegionChanged
	ReasonIdleTimeout
)

func (r Reason) String() string {
	switch r {
	case ReasonFirstPoint:
		return "first point"
	case ReasonMoved:
		return "moved"
	case ReasonRegionChanged:
		return "dimension changed"
	case ReasonIdleTimeout:
		return "idle timeout"
	default:
		return "none"
	}
}

// ShouldRecord applies the recording policy. Reasons are checked in priority order.
func ShouldRecord(last *RoutePoint, lastAt time.Time, current RoutePoint, now time.Time, minMove float64, maxIdle time.Duration) Reason {
	if last == nil {
		return ReasonFirstPoint
	}
	if current.DistanceXZ(*last) >= minMove {
		return ReasonMoved
	}
	if current.Dimension != last.Dimension {
		return ReasonRegionChanged
	}
	idle := maxIdle
	if !lastAt.IsZero() {
		idle = now.Sub(lastAt)
	}
	if idle >= maxIdle {
		return ReasonIdleTimeout
	}
	return ReasonNone
}

type tracked struct {
	session        *Session
	lastPoint      *RoutePoint
	lastRecordedAt time.Time
}

type pointEvent struct {
	session Session
	point   RoutePoint
}

// Tracker owns one Session per present player and runs the sampling policy.
type Tracker struct {
	opts           Options
	ticksPerSample int
	store          Store
	pub            Publisher
	tiles          TileWarmer
	clock          Clock
	log            *zap.Logger
	now            func() time.Time
	newID          func() string

	mu   sync.RWMutex
	live map[string]*tracked

	tickMu      sync.Mutex
	tickCounter int
	tileCounter int
	timeCounter int
}

func NewTracker(opts Options, store Store, pub Publisher, warmer TileWarmer, clock Clock, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	ticks := opts.SampleIntervalMs / int(world.TickInterval/time.Millisecond)
	if ticks < 1 {
		ticks = 1
	}
	return &Tracker{
		opts:           opts,
		ticksPerSample: ticks,
		store:          store,
		pub:            pub,
		tiles:          warmer,
		clock:          clock,
		log:            log,
		now:            time.Now,
		newID:          newSessionID,
		live:           map[string]*tracked{},
	}
}

// newSessionID yields ids that sort by creation time.
func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "sess_" + uuid.NewString()
	}
	return "sess_" + id.String()
}

func (t *Tracker) TicksPerSample() int {
	return t.ticksPerSample
}

// Recover ends sessions left active by an unclean shutdown.
func (t *Tracker) Recover(ctx context.Context) (int, error) {
	if t.store == nil {
		return 0, nil
	}
	stale, err := t.store.Active(ctx)
	if err != nil {
		return 0, err
	}
	nowMs := t.now().UnixMilli()
	for i := range stale {
		stale[i].End(nowMs)
		if err := t.store.Save(ctx, stale[i]); err != nil {
			t.log.Error("failed to close stale session", zap.String("session", stale[i].ID), zap.Error(err))
		}
	}
	if len(stale) > 0 {
		t.log.Info("closed stale sessions", zap.Int("count", len(stale)))
	}
	return len(stale), nil
}

func (t *Tracker) OnAppear(ctx context.Context, e world.Entity) {
	t.Begin(ctx, e)
}

// Begin starts a session for e. It is a no-op returning false if e is already tracked.
func (t *Tracker) Begin(ctx context.Context, e world.Entity) (Session, bool) {
	now := t.now()

	t.mu.Lock()
	if _, ok := t.live[e.ID]; ok {
		t.mu.Unlock()
		return Session{}, false
	}
	s := NewSession(t.newID(), e.ID, e.Name, now.UnixMilli())
	first := pointOf(e, now)
	s.AddPoint(first, t.opts.MaxPointsPerSession)
	s.UpdatePing(e.LatencyMs)
	t.live[e.ID] = &tracked{session: s, lastPoint: &first, lastRecordedAt: now}
	snapshot := s.Clone()
	t.mu.Unlock()

	t.save(ctx, snapshot)
	if t.tiles != nil {
		t.tiles.Warm(tiles.KeyAt(e.Region, e.X, e.Z))
	}
	t.log.Info("started session", zap.String("session", snapshot.ID), zap.String("player", e.Name))
	if t.pub != nil {
		t.pub.SessionStarted(snapshot)
	}
	return snapshot, true
}

func (t *Tracker) OnDisappear(ctx context.Context, id string) {
	t.mu.Lock()
	tr, ok := t.live[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.live, id)
	tr.session.End(t.now().UnixMilli())
	snapshot := tr.session.Clone()
	t.mu.Unlock()

	t.save(ctx, snapshot)
	t.log.Info("ended session", zap.String("session", snapshot.ID), zap.String("player", snapshot.PlayerName))
	if t.pub != nil {
		t.pub.SessionEnded(snapshot)
	}
}

// OnTick is called once per world tick. Sampling runs every TicksPerSample ticks.
func (t *Tracker) OnTick(ctx context.Context, now time.Time, entities []world.Entity) {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()

	t.tickCounter++
	t.tileCounter++
	t.timeCounter++

	if t.tileCounter >= ticksPerTileWarm {
		t.tileCounter = 0
		t.warmAround(entities)
	}
	if t.timeCounter >= ticksPerTimeUpdate {
		t.timeCounter = 0
		if t.clock != nil && t.pub != nil {
			if wt, ok := t.clock.WorldTime(); ok {
				t.pub.WorldTime(wt)
			}
		}
	}

	if t.tickCounter < t.ticksPerSample {
		return
	}
	t.tickCounter = 0
	t.sample(now, entities)
}

// Sample runs the recording policy once for the given entities.
func (t *Tracker) Sample(now time.Time, entities []world.Entity) int {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()
	return t.sample(now, entities)
}

func (t *Tracker) sample(now time.Time, entities []world.Entity) int {
	minMove := float64(t.opts.MinMoveBlocks)
	maxIdle := time.Duration(t.opts.MaxIdleIntervalMs) * time.Millisecond

	var events []pointEvent
	t.mu.Lock()
	for _, e := range entities {
		tr, ok := t.live[e.ID]
		if !ok {
			continue
		}
		tr.session.UpdatePing(e.LatencyMs)

		current := pointOf(e, now)
		reason := ShouldRecord(tr.lastPoint, tr.lastRecordedAt, current, now, minMove, maxIdle)
		if reason == ReasonNone {
			continue
		}
		if !tr.session.AddPoint(current, t.opts.MaxPointsPerSession) {
			continue
		}
		// AddPoint may clamp the timestamp; publish what was stored.
		stored, _ := tr.session.LastPoint()
		tr.lastPoint = &stored
		tr.lastRecordedAt = now
		events = append(events, pointEvent{session: tr.session.header(), point: stored})

		if ce := t.log.Check(zap.DebugLevel, "recorded point"); ce != nil {
			ce.Write(zap.String("session", tr.session.ID), zap.Stringer("reason", reason))
		}
	}
	t.mu.Unlock()

	if t.pub != nil && len(events) > 0 {
		var worldTime int64
		if t.clock != nil {
			worldTime, _ = t.clock.WorldTime()
		}
		for _, ev := range events {
			t.pub.RoutePoint(ev.session, ev.point, worldTime)
		}
	}
	return len(events)
}

func (t *Tracker) warmAround(entities []world.Entity) {
	if t.tiles == nil {
		return
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range entities {
		if _, ok := t.live[e.ID]; ok {
			t.tiles.Warm(tiles.KeyAt(e.Region, e.X, e.Z))
		}
	}
}

// Shutdown ends every live session and clears tracker state.
func (t *Tracker) Shutdown(ctx context.Context) {
	nowMs := t.now().UnixMilli()

	t.mu.Lock()
	ended := make([]Session, 0, len(t.live))
	for _, tr := range t.live {
		tr.session.End(nowMs)
		ended = append(ended, tr.session.Clone())
	}
	t.live = map[string]*tracked{}
	t.mu.Unlock()

	for _, s := range ended {
		t.save(ctx, s)
		if t.pub != nil {
			t.pub.SessionEnded(s)
		}
	}
	t.log.Info("tracker stopped", zap.Int("ended", len(ended)))
}

// ActiveSessions returns copies of all live sessions, oldest first.
func (t *Tracker) ActiveSessions() []Session {
	t.mu.RLock()
	out := make([]Session, 0, len(t.live))
	for _, tr := range t.live {
		out = append(out, tr.session.Clone())
	}
	t.mu.RUnlock()

	sortOldestFirst(out)
	return out
}

func (t *Tracker) ActiveSummaries() []Summary {
	t.mu.RLock()
	out := make([]Summary, 0, len(t.live))
	for _, tr := range t.live {
		out = append(out, tr.session.Summary())
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt < out[j].StartedAt })
	return out
}

// ActiveSession returns the live session of a player.
func (t *Tracker) ActiveSession(playerID string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.live[playerID]
	if !ok {
		return Session{}, false
	}
	return tr.session.Clone(), true
}

// Session looks a session up by id, live sessions first.
func (t *Tracker) Session(ctx context.Context, id string) (Session, error) {
	t.mu.RLock()
	for _, tr := range t.live {
		if tr.session.ID == id {
			s := tr.session.Clone()
			t.mu.RUnlock()
			return s, nil
		}
	}
	t.mu.RUnlock()

	if t.store == nil {
		return Session{}, ErrNotFound
	}
	s, err := t.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

func (t *Tracker) save(ctx context.Context, s Session) {
	if t.store == nil {
		return
	}
	if err := t.store.Save(ctx, s); err != nil && !errors.Is(err, context.Canceled) {
		t.log.Error("failed to save session", zap.String("session", s.ID), zap.Error(err))
	}
}

func pointOf(e world.Entity, now time.Time) RoutePoint {
	return RoutePoint{Timestamp: now.UnixMilli(), X: e.X, Y: e.Y, Z: e.Z, Dimension: e.Region}
}

func sortOldestFirst(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartedAt == sessions[j].StartedAt {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].StartedAt < sessions[j].StartedAt
	})
}
