package tiles

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeRenderer struct {
	mu    sync.Mutex
	calls []Key
	fail  map[Key]error
	hook  func(Key)
}

func (f *fakeRenderer) Render(ctx context.Context, k Key) error {
	f.mu.Lock()
	f.calls = append(f.calls, k)
	err := f.fail[k]
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(k)
	}
	return err
}

func (f *fakeRenderer) count(k Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == k {
			n++
		}
	}
	return n
}

func testScheduler(r Renderer, centers CenterSource) *Scheduler {
	return NewScheduler(r, centers, Options{
		HighPerCycle:  8,
		LowPerCycle:   4,
		InnerRadius:   1,
		OuterRadius:   2,
		RenderTimeout: time.Second,
	}, zap.NewNop())
}

func TestRequestTileDeduplicates(t *testing.T) {
	r := &fakeRenderer{}
	s := testScheduler(r, nil)
	k := Key{Region: "overworld", X: 1, Z: 2}

	if !s.RequestTile(k, true) {
		t.Fatalf("first request should enqueue")
	}
	if s.RequestTile(k, false) {
		t.Fatalf("second request should be a no-op")
	}
	if st := s.Stats(); st.QueuedHigh != 1 || st.QueuedLow != 0 {
		t.Fatalf("unexpected queues: %+v", st)
	}

	res := s.Drain(context.Background())
	if res.Dispatched != 1 || res.Rendered != 1 {
		t.Fatalf("unexpected drain: %+v", res)
	}
	if r.count(k) != 1 {
		t.Fatalf("expected one render, got %d", r.count(k))
	}
}

func TestRenderedTileSuppressedUntilInvalidated(t *testing.T) {
	r := &fakeRenderer{}
	s := testScheduler(r, nil)
	k := Key{Region: "overworld", X: 0, Z: 0}

	s.RequestTile(k, true)
	s.Drain(context.Background())
	if s.State(k) != StateRendered {
		t.Fatalf("expected rendered, got %s", s.State(k))
	}
	if s.RequestTile(k, true) {
		t.Fatalf("rendered tile should not be requeued")
	}
	s.Drain(context.Background())
	if r.count(k) != 1 {
		t.Fatalf("expected one render, got %d", r.count(k))
	}

	s.OnExternalInvalidate(k)
	if s.State(k) != StateQueued {
		t.Fatalf("expected queued after invalidate, got %s", s.State(k))
	}
	s.Drain(context.Background())
	if r.count(k) != 2 {
		t.Fatalf("expected second render, got %d", r.count(k))
	}
}

func TestDrainRespectsPerCycleLimits(t *testing.T) {
	r := &fakeRenderer{}
	s := NewScheduler(r, nil, Options{HighPerCycle: 2, LowPerCycle: 1, RenderTimeout: time.Second}, zap.NewNop())
	for i := 0; i < 5; i++ {
		s.RequestTile(Key{Region: "overworld", X: i}, true)
		s.RequestTile(Key{Region: "overworld", X: 100 + i}, false)
	}

	res := s.Drain(context.Background())
	if res.Dispatched != 3 {
		t.Fatalf("expected 3 dispatched, got %d", res.Dispatched)
	}
	r.mu.Lock()
	order := append([]Key(nil), r.calls...)
	r.mu.Unlock()
	if order[0].X != 0 || order[1].X != 1 || order[2].X != 100 {
		t.Fatalf("unexpected order: %v", order)
	}
	if st := s.Stats(); st.QueuedHigh != 3 || st.QueuedLow != 4 {
		t.Fatalf("unexpected remaining queues: %+v", st)
	}
}

func TestFailedRenderIsDropped(t *testing.T) {
	k := Key{Region: "overworld", X: 3, Z: 3}
	r := &fakeRenderer{fail: map[Key]error{k: errors.New("boom")}}
	s := testScheduler(r, nil)

	s.RequestTile(k, true)
	res := s.Drain(context.Background())
	if res.Failed != 1 {
		t.Fatalf("expected failure, got %+v", res)
	}
	if s.State(k) != StateUnknown {
		t.Fatalf("failed tile should be unknown, got %s", s.State(k))
	}
	if !s.RequestTile(k, true) {
		t.Fatalf("failed tile should be requestable again")
	}
}

func TestRenderPanicIsFailure(t *testing.T) {
	k := Key{Region: "overworld"}
	r := &fakeRenderer{hook: func(Key) { panic("bad surface") }}
	s := testScheduler(r, nil)

	s.RequestTile(k, true)
	if res := s.Drain(context.Background()); res.Failed != 1 {
		t.Fatalf("expected panic to count as failure, got %+v", res)
	}
}

func TestRenderTimeoutAbandonsKey(t *testing.T) {
	release := make(chan struct{})
	r := &fakeRenderer{hook: func(Key) { <-release }}
	s := NewScheduler(r, nil, Options{HighPerCycle: 1, RenderTimeout: 20 * time.Millisecond}, zap.NewNop())
	k := Key{Region: "overworld", X: 9}

	s.RequestTile(k, true)
	res := s.Drain(context.Background())
	close(release)
	if res.Failed != 1 {
		t.Fatalf("expected timeout failure, got %+v", res)
	}
	if s.Stats().TimedOut != 1 {
		t.Fatalf("expected timed out counter")
	}
	if s.State(k) != StateUnknown {
		t.Fatalf("timed out key should be dropped, got %s", s.State(k))
	}
}

func TestInvalidateWhileRenderingRequeues(t *testing.T) {
	k := Key{Region: "overworld", X: 5, Z: 5}
	var s *Scheduler
	r := &fakeRenderer{}
	r.hook = func(got Key) {
		if got == k && r.count(k) == 1 {
			s.OnExternalInvalidate(k)
		}
	}
	s = testScheduler(r, nil)

	s.RequestTile(k, true)
	s.Drain(context.Background())
	if s.State(k) != StateQueued {
		t.Fatalf("stale render should requeue, got %s", s.State(k))
	}
	s.Drain(context.Background())
	if s.State(k) != StateRendered || r.count(k) != 2 {
		t.Fatalf("expected rendered after second pass, state=%s renders=%d", s.State(k), r.count(k))
	}
}

func TestRequestAroundPriorities(t *testing.T) {
	s := testScheduler(&fakeRenderer{}, nil)
	added := s.RequestAround(Key{Region: "overworld"}, 1, 2)
	if added != 25 {
		t.Fatalf("expected 25 tiles, got %d", added)
	}
	st := s.Stats()
	if st.QueuedHigh != 9 || st.QueuedLow != 16 {
		t.Fatalf("unexpected split: %+v", st)
	}
}

func TestInvalidateRegionRewarmsAllCenters(t *testing.T) {
	centers := CenterFunc(func() []Key {
		return []Key{{Region: "overworld", X: 0, Z: 0}}
	})
	s := testScheduler(&fakeRenderer{}, centers)

	nether := Key{Region: "nether", X: 1, Z: 1}
	over := Key{Region: "overworld", X: 40, Z: 40}
	s.MarkRendered(nether, over)

	removed := s.InvalidateRegion("nether")
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if s.State(nether) == StateRendered {
		t.Fatalf("nether tile should be cleared")
	}
	if s.State(over) != StateRendered {
		t.Fatalf("overworld tile should be kept")
	}
	if s.State(Key{Region: "overworld"}) != StateQueued {
		t.Fatalf("overworld player area should be re-warmed")
	}
}

func TestInvalidateCacheClearsEverything(t *testing.T) {
	s := testScheduler(&fakeRenderer{}, nil)
	s.MarkRendered(Key{Region: "a"}, Key{Region: "b"})
	s.RequestTile(Key{Region: "c"}, false)

	s.InvalidateCache()
	st := s.Stats()
	if st.Rendered != 0 || st.QueuedLow != 0 || st.QueuedHigh != 0 {
		t.Fatalf("expected empty scheduler, got %+v", st)
	}
}

func TestLoadExistingFromDisk(t *testing.T) {
	dir := t.TempDir()
	p := NewPaths(dir)
	for _, name := range []string{"0_0.png", "-3_7.png", "notes.txt", "bad_x.png"} {
		path := filepath.Join(p.Root, "overworld", name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	namespaced := Key{Region: "minecraft:overworld", X: 2, Z: -1}
	if err := NewPNGRenderer(p, flatSurface{}).Render(context.Background(), namespaced); err != nil {
		t.Fatalf("render: %v", err)
	}

	s := testScheduler(&fakeRenderer{}, nil)
	n, err := s.LoadExisting(p)
	if err != nil || n != 3 {
		t.Fatalf("load existing: n=%d err=%v", n, err)
	}
	if !s.IsRendered(Key{Region: "overworld", X: -3, Z: 7}) {
		t.Fatalf("expected scanned tile to be rendered")
	}
	if s.RequestTile(Key{Region: "overworld"}, true) {
		t.Fatalf("scanned tile should not be requeued")
	}
	if !s.IsRendered(namespaced) {
		t.Fatalf("namespaced tile not seeded: %v", s.State(namespaced))
	}
}

func TestRegionDirsAreDistinct(t *testing.T) {
	p := NewPaths(t.TempDir())
	a := p.TilePath(Key{Region: "a:b"})
	b := p.TilePath(Key{Region: "a_b"})
	if a == b {
		t.Fatalf("regions share a path: %s", a)
	}
	for _, region := range []string{"..", "x/../y", `c:\d`} {
		path := p.TilePath(Key{Region: region})
		if filepath.Dir(filepath.Dir(path)) != p.Root {
			t.Fatalf("region %q escapes root: %s", region, path)
		}
		got, ok := regionFromDir(filepath.Base(filepath.Dir(path)))
		if !ok || got != region {
			t.Fatalf("region %q decoded as %q", region, got)
		}
	}
}

func TestScanMissingRoot(t *testing.T) {
	keys, err := NewPaths(filepath.Join(t.TempDir(), "nope")).Scan()
	if err != nil || len(keys) != 0 {
		t.Fatalf("expected empty scan, got %v %v", keys, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := &fakeRenderer{}
	s := NewScheduler(r, nil, Options{HighPerCycle: 4, Interval: 5 * time.Millisecond, RenderTimeout: time.Second}, zap.NewNop())
	k := Key{Region: "overworld", X: 1}
	s.RequestTile(k, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !s.IsRendered(k) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if !s.IsRendered(k) {
		t.Fatalf("expected tile rendered by run loop")
	}
}
