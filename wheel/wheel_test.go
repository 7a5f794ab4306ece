package wheel

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type pendingFrame struct {
	fn        func()
	cancelled bool
}

// manualScheduler queues frames until the test fires them.
type manualScheduler struct {
	pending   []*pendingFrame
	scheduled int
}

func (s *manualScheduler) Schedule(fn func()) func() {
	f := &pendingFrame{fn: fn}
	s.pending = append(s.pending, f)
	s.scheduled++
	return func() { f.cancelled = true }
}

// step fires the oldest queued frame and reports whether it ran.
func (s *manualScheduler) step() bool {
	if len(s.pending) == 0 {
		return false
	}
	f := s.pending[0]
	s.pending = s.pending[1:]
	if f.cancelled {
		return false
	}
	f.fn()
	return true
}

func (s *manualScheduler) live() int {
	n := 0
	for _, f := range s.pending {
		if !f.cancelled {
			n++
		}
	}
	return n
}

type fixedRand struct {
	values []float64
	i      int
}

func (r *fixedRand) Float64() float64 {
	v := r.values[r.i%len(r.values)]
	r.i++
	return v
}

func letters(names ...string) []Item {
	items := make([]Item, len(names))
	for i, n := range names {
		items[i] = Item{ID: "id-" + n, Name: n}
	}
	return items
}

type harness struct {
	clock    *fakeClock
	sched    *manualScheduler
	wheel    *Wheel
	resolved []Item
	frames   []Frame
}

func newHarness(t *testing.T, pointer float64, r Rand, items ...Item) *harness {
	t.Helper()
	h := &harness{
		clock: &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		sched: &manualScheduler{},
	}
	opts := NewOptions()
	opts.PointerAngle = pointer
	opts.Clock = h.clock
	opts.Scheduler = h.sched
	opts.Rand = r
	opts.OnResolved = func(it Item) { h.resolved = append(h.resolved, it) }
	opts.OnFrame = func(f Frame) { h.frames = append(h.frames, f) }
	h.wheel = New(opts, items...)
	return h
}

// turns=3, offset=225 degrees, duration=3s.
func landAt225() *fixedRand {
	return &fixedRand{values: []float64{0, 0.625, 0}}
}

func TestNew_PanicsWithoutScheduler(t *testing.T) {
	assert.Panics(t, func() { New(Options{}) })
}

func TestNew_Defaults(t *testing.T) {
	w := New(Options{Scheduler: &manualScheduler{}, PointerAngle: -90})
	assert.Equal(t, Idle, w.Phase())
	assert.Equal(t, 0.0, w.Rotation())
	assert.InDelta(t, 270, w.PointerAngle(), 1e-9)
	assert.Equal(t, DefaultMinTurns, w.opts.MinTurns)
	assert.Equal(t, DefaultMaxTurns, w.opts.MaxTurns)
	assert.Equal(t, DefaultMinDuration, w.opts.MinDuration)
	assert.Equal(t, DefaultMaxDuration, w.opts.MaxDuration)
	assert.Equal(t, DefaultEaseExponent, w.opts.EaseExponent)
}

func TestSpin_WorkedExample(t *testing.T) {
	h := newHarness(t, 0, landAt225(), letters("A", "B", "C", "D")...)

	require.True(t, h.wheel.Spin())
	assert.Equal(t, Spinning, h.wheel.Phase())

	h.clock.advance(time.Second)
	require.True(t, h.sched.step())
	assert.Equal(t, Spinning, h.wheel.Phase())
	assert.InDelta(t, 1.0/3, h.wheel.Progress(), 1e-9)
	assert.Empty(t, h.resolved)

	h.clock.advance(2 * time.Second)
	require.True(t, h.sched.step())

	assert.Equal(t, Idle, h.wheel.Phase())
	assert.InDelta(t, 225, h.wheel.Rotation(), 1e-9)
	require.Len(t, h.resolved, 1)
	assert.Equal(t, "B", h.resolved[0].Name)
	assert.Equal(t, "id-B", h.resolved[0].ID)
	assert.Zero(t, h.sched.live(), "no frame may follow the final one")
}

func TestSpin_FramesFollowEasing(t *testing.T) {
	h := newHarness(t, 0, landAt225(), letters("A", "B", "C", "D")...)
	require.True(t, h.wheel.Spin())

	// Halfway through a cubic ease-out the wheel has covered 87.5%.
	h.clock.advance(1500 * time.Millisecond)
	require.True(t, h.sched.step())
	want := Normalize(1305 * 0.875)
	assert.InDelta(t, want, h.wheel.Rotation(), 1e-9)

	require.Len(t, h.frames, 1)
	assert.Equal(t, Spinning, h.frames[0].Phase)
	assert.InDelta(t, 0.5, h.frames[0].Progress, 1e-9)
}

func TestSpin_StartsFromCurrentRotation(t *testing.T) {
	h := newHarness(t, 0, landAt225(), letters("A", "B", "C", "D")...)

	require.True(t, h.wheel.Spin())
	h.clock.advance(10 * time.Second)
	require.True(t, h.sched.step())
	require.InDelta(t, 225, h.wheel.Rotation(), 1e-9)

	// Second spin adds another 1305 degrees on top of 225.
	require.True(t, h.wheel.Spin())
	h.clock.advance(10 * time.Second)
	require.True(t, h.sched.step())
	assert.InDelta(t, Normalize(225+1305), h.wheel.Rotation(), 1e-9)
	require.Len(t, h.resolved, 2)
	assert.Equal(t, "D", h.resolved[1].Name)
}

func TestSpin_IgnoredWhileSpinning(t *testing.T) {
	h := newHarness(t, 0, landAt225(), letters("A", "B", "C", "D")...)

	require.True(t, h.wheel.Spin())
	assert.False(t, h.wheel.Spin())
	assert.Equal(t, 1, h.sched.scheduled)

	h.clock.advance(5 * time.Second)
	require.True(t, h.sched.step())
	assert.Len(t, h.resolved, 1)
}

func TestSpin_IgnoredWithoutItems(t *testing.T) {
	h := newHarness(t, 0, landAt225())

	assert.False(t, h.wheel.Spin())
	assert.Equal(t, Idle, h.wheel.Phase())
	assert.Zero(t, h.sched.scheduled)
	assert.Empty(t, h.resolved)
	assert.Nil(t, h.wheel.Segments())
}

func TestSpin_SingleItemAlwaysWins(t *testing.T) {
	h := newHarness(t, 270, rand.New(rand.NewPCG(7, 11)), letters("Solo")...)
	for range 20 {
		require.True(t, h.wheel.Spin())
		h.clock.advance(10 * time.Second)
		require.True(t, h.sched.step())
	}
	require.Len(t, h.resolved, 20)
	for _, it := range h.resolved {
		assert.Equal(t, "Solo", it.Name)
	}
}

func TestSpin_SnapshotSurvivesConfigure(t *testing.T) {
	// turns=3, offset=36: rotation 36, pointer 0 -> index 4 of 5.
	r := &fixedRand{values: []float64{0, 0.1, 0}}
	h := newHarness(t, 0, r, letters("A", "B", "C", "D", "E")...)

	require.True(t, h.wheel.Spin())
	h.wheel.Configure(letters("X", "Y", "Z"))

	assert.Len(t, h.wheel.Segments(), 5, "the spinning wheel still draws its snapshot")
	assert.Len(t, h.wheel.Items(), 3)

	h.clock.advance(time.Second)
	require.True(t, h.sched.step())
	h.clock.advance(5 * time.Second)
	require.True(t, h.sched.step())

	require.Len(t, h.resolved, 1)
	assert.Equal(t, "E", h.resolved[0].Name)
	assert.Len(t, h.wheel.Segments(), 3, "idle wheel draws the new list")
}

func TestSpin_SnapshotSurvivesEmptyConfigure(t *testing.T) {
	h := newHarness(t, 0, landAt225(), letters("A", "B", "C", "D")...)

	require.True(t, h.wheel.Spin())
	h.wheel.Configure(nil)

	h.clock.advance(5 * time.Second)
	require.True(t, h.sched.step())
	require.Len(t, h.resolved, 1)
	assert.Equal(t, "B", h.resolved[0].Name)

	assert.False(t, h.wheel.Spin(), "the next spin sees the empty list")
}

func TestConfigure_CopiesInput(t *testing.T) {
	h := newHarness(t, 0, landAt225())
	items := letters("A", "B")
	h.wheel.Configure(items)
	items[0].Name = "mutated"
	assert.Equal(t, "A", h.wheel.Items()[0].Name)
}

func TestSpin_SinkSeesFinishedState(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sched := &manualScheduler{}
	calls := 0

	var w *Wheel
	opts := NewOptions()
	opts.Clock = clock
	opts.Scheduler = sched
	opts.Rand = landAt225()
	opts.OnResolved = func(Item) {
		calls++
		assert.Equal(t, Idle, w.Phase())
		assert.Equal(t, 1.0, w.Progress())
	}
	w = New(opts, letters("A", "B", "C")...)

	require.True(t, w.Spin())
	for i := 0; i < 10; i++ {
		clock.advance(400 * time.Millisecond)
		sched.step()
	}
	assert.Equal(t, 1, calls)
	assert.Zero(t, sched.live())
}

func TestSpin_SinkMayStartNextSpin(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sched := &manualScheduler{}
	spins := 0

	var w *Wheel
	opts := NewOptions()
	opts.Clock = clock
	opts.Scheduler = sched
	opts.Rand = landAt225()
	opts.OnResolved = func(Item) {
		spins++
		if spins < 3 {
			assert.True(t, w.Spin())
		}
	}
	w = New(opts, letters("A", "B")...)

	require.True(t, w.Spin())
	for sched.live() > 0 {
		clock.advance(10 * time.Second)
		sched.step()
	}
	assert.Equal(t, 3, spins)
	assert.Equal(t, 3, sched.scheduled)
}

func TestStop_CancelsSpin(t *testing.T) {
	h := newHarness(t, 0, landAt225(), letters("A", "B", "C", "D")...)

	require.True(t, h.wheel.Spin())
	h.clock.advance(time.Second)
	require.True(t, h.sched.step())
	frozen := h.wheel.Rotation()

	require.True(t, h.wheel.Stop())
	assert.Equal(t, Idle, h.wheel.Phase())
	assert.Zero(t, h.sched.live())

	h.clock.advance(10 * time.Second)
	assert.False(t, h.sched.step())
	assert.Empty(t, h.resolved)
	assert.Equal(t, frozen, h.wheel.Rotation())
	assert.Equal(t, Idle, h.frames[len(h.frames)-1].Phase)

	assert.False(t, h.wheel.Stop(), "stopping an idle wheel is a no-op")
	assert.True(t, h.wheel.Spin(), "a stopped wheel can spin again")
}

func TestClose_DisposesWheel(t *testing.T) {
	h := newHarness(t, 0, landAt225(), letters("A", "B", "C", "D")...)

	require.True(t, h.wheel.Spin())
	h.wheel.Close()

	h.clock.advance(10 * time.Second)
	assert.False(t, h.sched.step())
	assert.Empty(t, h.resolved)
	assert.False(t, h.wheel.Spin())
	assert.Equal(t, 1, h.sched.scheduled)
}

func TestClose_IgnoresStaleFrame(t *testing.T) {
	// A scheduler that ignores cancellation must still not resolve a closed wheel.
	clock := &fakeClock{now: time.Unix(0, 0)}
	var queued []func()
	resolved := 0

	opts := NewOptions()
	opts.Clock = clock
	opts.Scheduler = schedulerFunc(func(fn func()) func() {
		queued = append(queued, fn)
		return func() {}
	})
	opts.Rand = landAt225()
	opts.OnResolved = func(Item) { resolved++ }
	w := New(opts, letters("A", "B")...)

	require.True(t, w.Spin())
	w.Close()
	clock.advance(10 * time.Second)
	for _, fn := range queued {
		fn()
	}
	assert.Zero(t, resolved)
}

type schedulerFunc func(fn func()) func()

func (f schedulerFunc) Schedule(fn func()) func() { return f(fn) }

func TestSpin_RotationStaysNormalized(t *testing.T) {
	h := newHarness(t, 270, rand.New(rand.NewPCG(1, 2)), letters("A", "B", "C", "D", "E", "F", "G")...)

	for range 50 {
		require.True(t, h.wheel.Spin())
		for h.sched.live() > 0 {
			h.clock.advance(16 * time.Millisecond)
			h.sched.step()
		}
	}
	require.Len(t, h.resolved, 50)
	require.NotEmpty(t, h.frames)
	for _, f := range h.frames {
		assert.GreaterOrEqual(t, f.Rotation, 0.0)
		assert.Less(t, f.Rotation, 360.0)
		assert.GreaterOrEqual(t, f.Progress, 0.0)
		assert.LessOrEqual(t, f.Progress, 1.0)
	}
}

func TestSpin_DrawsWithinConfiguredRanges(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	opts := NewOptions()
	opts.Clock = clock
	opts.Scheduler = &manualScheduler{}
	opts.Rand = rand.New(rand.NewPCG(3, 4))
	w := New(opts, letters("A", "B")...)

	for range 200 {
		require.True(t, w.Spin())
		s := w.current
		assert.GreaterOrEqual(t, s.target, DefaultMinTurns*360)
		assert.Less(t, s.target, DefaultMaxTurns*360+360)
		assert.GreaterOrEqual(t, s.duration, DefaultMinDuration)
		assert.LessOrEqual(t, s.duration, DefaultMaxDuration)
		w.Stop()
	}
}

func TestSpin_FairAcrossSegments(t *testing.T) {
	const (
		n     = 4
		spins = 8000
	)
	h := newHarness(t, 270, rand.New(rand.NewPCG(42, 99)), letters("A", "B", "C", "D")...)

	for range spins {
		require.True(t, h.wheel.Spin())
		h.clock.advance(10 * time.Second)
		require.True(t, h.sched.step())
	}

	counts := map[string]int{}
	for _, it := range h.resolved {
		counts[it.Name]++
	}
	require.Len(t, counts, n)
	for name, c := range counts {
		assert.InDelta(t, spins/n, c, spins/n*0.1, "item %s", name)
	}
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "spinning", Spinning.String())
	assert.Equal(t, "unknown", Phase(9).String())
}
