package tiles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"backend-playerroutes/internal/shared/geo"

	"go.uber.org/zap"
)

// Renderer produces the artifact for one tile. Implementations need not be
// safe for concurrent use; the scheduler calls Render one at a time.
type Renderer interface {
	Render(ctx context.Context, k Key) error
}

// CenterSource lists the tile under every currently tracked player.
type CenterSource interface {
	Centers() []Key
}

type CenterFunc func() []Key

func (f CenterFunc) Centers() []Key { return f() }

type Options struct {
	HighPerCycle  int
	LowPerCycle   int
	InnerRadius   int
	OuterRadius   int
	Interval      time.Duration
	RenderTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		HighPerCycle:  8,
		LowPerCycle:   4,
		InnerRadius:   8,
		OuterRadius:   16,
		Interval:      50 * time.Millisecond,
		RenderTimeout: 2 * time.Second,
	}
}

// DrainResult reports one drain cycle.
type DrainResult struct {
	Dispatched int
	Rendered   int
	Failed     int
}

// Scheduler is the two-tier render queue in front of a Renderer with a
// rendered-set cache. A key is in at most one of queued, rendering or rendered.
type Scheduler struct {
	opts     Options
	renderer Renderer
	centers  CenterSource
	log      *zap.Logger

	mu       sync.Mutex
	rendered map[Key]struct{}
	queued   map[Key]struct{}
	inflight map[Key]bool // value: invalidated while rendering
	high     []Key
	low      []Key

	// sem serializes backend calls, including ones abandoned after a timeout.
	sem chan struct{}

	dispatched atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	timedOut   atomic.Int64
}

func NewScheduler(renderer Renderer, centers CenterSource, opts Options, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = def.RenderTimeout
	}
	if opts.OuterRadius < opts.InnerRadius {
		opts.OuterRadius = opts.InnerRadius
	}
	return &Scheduler{
		opts:     opts,
		renderer: renderer,
		centers:  centers,
		log:      log,
		rendered: map[Key]struct{}{},
		queued:   map[Key]struct{}{},
		inflight: map[Key]bool{},
		sem:      make(chan struct{}, 1),
	}
}

// LoadExisting seeds the rendered set from artifacts already on disk.
func (s *Scheduler) LoadExisting(p Paths) (int, error) {
	keys, err := p.Scan()
	if err != nil {
		return 0, err
	}
	s.MarkRendered(keys...)
	s.log.Info("loaded existing tiles", zap.Int("count", len(keys)))
	return len(keys), nil
}

func (s *Scheduler) MarkRendered(keys ...Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if _, ok := s.queued[k]; ok {
			continue
		}
		if _, ok := s.inflight[k]; ok {
			continue
		}
		s.rendered[k] = struct{}{}
	}
}

// RequestTile enqueues k unless it is already rendered, queued or rendering.
func (s *Scheduler) RequestTile(k Key, highPriority bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestLocked(k, highPriority)
}

func (s *Scheduler) requestLocked(k Key, highPriority bool) bool {
	if _, ok := s.rendered[k]; ok {
		return false
	}
	if _, ok := s.queued[k]; ok {
		return false
	}
	if _, ok := s.inflight[k]; ok {
		return false
	}
	s.queued[k] = struct{}{}
	if highPriority {
		s.high = append(s.high, k)
	} else {
		s.low = append(s.low, k)
	}
	return true
}

// RequestAround queues every tile within outer of center, high priority inside inner.
func (s *Scheduler) RequestAround(center Key, inner, outer int) int {
	if outer < inner {
		outer = inner
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for dx := -inner; dx <= inner; dx++ {
		for dz := -inner; dz <= inner; dz++ {
			if s.requestLocked(Key{Region: center.Region, X: center.X + dx, Z: center.Z + dz}, true) {
				added++
			}
		}
	}
	for dx := -outer; dx <= outer; dx++ {
		for dz := -outer; dz <= outer; dz++ {
			if geo.Chebyshev(dx, dz, 0, 0) <= inner {
				continue
			}
			if s.requestLocked(Key{Region: center.Region, X: center.X + dx, Z: center.Z + dz}, false) {
				added++
			}
		}
	}
	return added
}

// Warm queues the configured area around center.
func (s *Scheduler) Warm(center Key) {
	s.RequestAround(center, s.opts.InnerRadius, s.opts.OuterRadius)
}

// OnExternalInvalidate forces k to be rendered again.
func (s *Scheduler) OnExternalInvalidate(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rendered, k)
	if _, ok := s.inflight[k]; ok {
		s.inflight[k] = true
		return
	}
	s.requestLocked(k, true)
}

// InvalidateCache forgets every rendered and queued tile, then re-warms
// around every tracked player. Artifacts on disk are left in place.
func (s *Scheduler) InvalidateCache() {
	s.mu.Lock()
	count := len(s.rendered)
	s.rendered = map[Key]struct{}{}
	s.queued = map[Key]struct{}{}
	s.high = nil
	s.low = nil
	for k := range s.inflight {
		s.inflight[k] = true
	}
	s.mu.Unlock()

	s.log.Info("cleared tile cache", zap.Int("tiles", count))
	s.rewarm()
}

// InvalidateRegion forgets rendered tiles of one region and re-warms around
// every tracked player, not only those inside the region.
func (s *Scheduler) InvalidateRegion(region string) int {
	s.mu.Lock()
	removed := 0
	for k := range s.rendered {
		if k.Region == region {
			delete(s.rendered, k)
			removed++
		}
	}
	for k := range s.inflight {
		if k.Region == region {
			s.inflight[k] = true
		}
	}
	s.mu.Unlock()

	s.log.Info("cleared region tiles", zap.String("region", region), zap.Int("tiles", removed))
	s.rewarm()
	return removed
}

func (s *Scheduler) rewarm() {
	if s.centers == nil {
		return
	}
	for _, c := range s.centers.Centers() {
		s.Warm(c)
	}
}

// Drain pops up to HighPerCycle keys from the high queue, then up to
// LowPerCycle from the low queue, and renders them one at a time.
func (s *Scheduler) Drain(ctx context.Context) DrainResult {
	batch := s.pop()

	var res DrainResult
	for _, k := range batch {
		if ctx.Err() != nil {
			s.settle(k, false)
			continue
		}
		res.Dispatched++
		s.dispatched.Add(1)

		err := s.render(ctx, k)
		if err != nil {
			res.Failed++
			s.failed.Add(1)
			if errors.Is(err, context.DeadlineExceeded) {
				s.timedOut.Add(1)
			}
			s.log.Debug("tile render failed", zap.Stringer("tile", k), zap.Error(err))
		} else {
			res.Rendered++
			s.succeeded.Add(1)
		}
		s.settle(k, err == nil)
	}
	return res
}

func (s *Scheduler) pop() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	nHigh := min(s.opts.HighPerCycle, len(s.high))
	nLow := min(s.opts.LowPerCycle, len(s.low))
	if nHigh+nLow == 0 {
		return nil
	}

	batch := make([]Key, 0, nHigh+nLow)
	batch = append(batch, s.high[:nHigh]...)
	batch = append(batch, s.low[:nLow]...)
	s.high = s.high[nHigh:]
	s.low = s.low[nLow:]

	for _, k := range batch {
		delete(s.queued, k)
		s.inflight[k] = false
	}
	return batch
}

// settle moves a finished key to rendered or back to unknown. Keys
// invalidated while rendering are requeued at high priority instead.
func (s *Scheduler) settle(k Key, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := s.inflight[k]
	delete(s.inflight, k)
	if stale {
		s.requestLocked(k, true)
		return
	}
	if ok {
		s.rendered[k] = struct{}{}
	}
}

func (s *Scheduler) render(ctx context.Context, k Key) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RenderTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			done <- ctx.Err()
			return
		}
		defer func() { <-s.sem }()
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- s.safeRender(ctx, k)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) safeRender(ctx context.Context, k Key) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panic: %v", r)
		}
	}()
	return s.renderer.Render(ctx, k)
}

// Run drains on the configured cadence until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.log.Info("tile scheduler started", zap.Duration("interval", s.opts.Interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("tile scheduler stopped")
			return
		case <-ticker.C:
			s.Drain(ctx)
		}
	}
}

func (s *Scheduler) State(k Key) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rendered[k]; ok {
		return StateRendered
	}
	if _, ok := s.queued[k]; ok {
		return StateQueued
	}
	if _, ok := s.inflight[k]; ok {
		return StateRendering
	}
	return StateUnknown
}

func (s *Scheduler) IsRendered(k Key) bool {
	return s.State(k) == StateRendered
}

type Stats struct {
	Rendered   int   `json:"rendered"`
	QueuedHigh int   `json:"queued_high"`
	QueuedLow  int   `json:"queued_low"`
	Rendering  int   `json:"rendering"`
	Dispatched int64 `json:"dispatched"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	TimedOut   int64 `json:"timed_out"`
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		Rendered:   len(s.rendered),
		QueuedHigh: len(s.high),
		QueuedLow:  len(s.low),
		Rendering:  len(s.inflight),
	}
	s.mu.Unlock()

	st.Dispatched = s.dispatched.Load()
	st.Succeeded = s.succeeded.Load()
	st.Failed = s.failed.Load()
	st.TimedOut = s.timedOut.Load()
	return st
}
