/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package wheel implements the selection wheel: a circle cut into equal
// segments, one per item, that spins for a few seconds on an ease-out curve
// and then reports the single item under the pointer.
//
// A Wheel is a plain state machine with two phases, Idle and Spinning. Time,
// frame scheduling and randomness are injected, so a host can drive it from
// any event loop and tests can drive it by hand. A Wheel is not safe for
// concurrent use: every method and every scheduled frame must run on the
// same goroutine.
package wheel

import (
	"math"
	"math/rand/v2"
	"slices"
	"time"
)

// Item is one selectable entry. Only the number and order of items affect
// geometry; ID and Image are carried through untouched.
type Item struct {
	ID    string
	Name  string
	Image string
}

// Phase is the animation state of a Wheel.
type Phase int

const (
	Idle Phase = iota
	Spinning
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Spinning:
		return "spinning"
	}
	return "unknown"
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Scheduler runs fn on the next animation frame. The returned cancel func
// must guarantee fn never runs once it has been called, even if the frame
// is already due.
type Scheduler interface {
	Schedule(fn func()) (cancel func())
}

// Rand supplies uniform values in [0, 1). *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Frame is what the wheel looks like after a tick.
type Frame struct {
	Rotation float64
	Progress float64
	Phase    Phase
}

// Defaults for zero-valued Options fields.
const (
	DefaultMinTurns     float64       = 3
	DefaultMaxTurns     float64       = 6
	DefaultMinDuration  time.Duration = 3 * time.Second
	DefaultMaxDuration  time.Duration = 5 * time.Second
	DefaultPointerAngle float64       = 270
	DefaultEaseExponent float64       = 3
)

// Options configures a Wheel. Zero values fall back to the defaults above,
// except PointerAngle, where zero is a valid angle; use NewOptions to start
// from the defaults.
type Options struct {
	MinTurns     float64
	MaxTurns     float64
	MinDuration  time.Duration
	MaxDuration  time.Duration
	PointerAngle float64
	EaseExponent float64

	Clock     Clock
	Scheduler Scheduler
	Rand      Rand

	// OnResolved is called once per completed spin with the winning item.
	OnResolved func(Item)
	// OnFrame is called after every tick and when a spin is stopped.
	OnFrame func(Frame)
}

// NewOptions returns Options populated with the default knobs.
func NewOptions() Options {
	return Options{
		MinTurns:     DefaultMinTurns,
		MaxTurns:     DefaultMaxTurns,
		MinDuration:  DefaultMinDuration,
		MaxDuration:  DefaultMaxDuration,
		PointerAngle: DefaultPointerAngle,
		EaseExponent: DefaultEaseExponent,
	}
}

func (o Options) withDefaults() Options {
	if o.MinTurns <= 0 {
		o.MinTurns = DefaultMinTurns
	}
	if o.MaxTurns < o.MinTurns {
		o.MaxTurns = max(DefaultMaxTurns, o.MinTurns)
	}
	if o.MinDuration <= 0 {
		o.MinDuration = DefaultMinDuration
	}
	if o.MaxDuration < o.MinDuration {
		o.MaxDuration = max(DefaultMaxDuration, o.MinDuration)
	}
	o.PointerAngle = Normalize(o.PointerAngle)
	if o.EaseExponent < 1 {
		o.EaseExponent = DefaultEaseExponent
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
	if o.Rand == nil {
		o.Rand = globalRand{}
	}
	return o
}

// spin is the state owned by one in-flight animation.
type spin struct {
	snapshot      []Item
	startRotation float64
	target        float64
	started       time.Time
	duration      time.Duration
}

// Wheel is the selection wheel state machine.
type Wheel struct {
	opts Options

	items    []Item
	rotation float64
	phase    Phase
	progress float64
	current  *spin
	cancel   func()
	closed   bool
}

// New returns an idle Wheel holding a copy of items. opts.Scheduler is
// required; New panics without one.
func New(opts Options, items ...Item) *Wheel {
	if opts.Scheduler == nil {
		panic("wheel: nil Scheduler")
	}
	return &Wheel{
		opts:  opts.withDefaults(),
		items: slices.Clone(items),
	}
}

// Configure replaces the live item list. A spin already in flight keeps
// resolving against the list it started with.
func (w *Wheel) Configure(items []Item) {
	w.items = slices.Clone(items)
}

// Spin starts a spin and reports whether one began. It does nothing while a
// spin is in flight, when there are no items, or after Close.
func (w *Wheel) Spin() bool {
	if w.closed || w.phase != Idle || len(w.items) == 0 {
		return false
	}

	r := w.opts.Rand
	turns := w.opts.MinTurns + r.Float64()*(w.opts.MaxTurns-w.opts.MinTurns)
	offset := r.Float64() * fullTurn
	spread := w.opts.MaxDuration - w.opts.MinDuration
	duration := w.opts.MinDuration + time.Duration(r.Float64()*float64(spread))

	w.current = &spin{
		snapshot:      slices.Clone(w.items),
		startRotation: w.rotation,
		target:        turns*fullTurn + offset,
		started:       w.opts.Clock.Now(),
		duration:      duration,
	}
	w.phase = Spinning
	w.progress = 0
	w.cancel = w.opts.Scheduler.Schedule(w.tick)

	return true
}

// Stop abandons the spin in flight, if any, leaving the wheel where it is.
// The abandoned spin never reports a result.
func (w *Wheel) Stop() bool {
	if w.phase != Spinning {
		return false
	}
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.current = nil
	w.phase = Idle
	w.progress = 0
	w.frame(0)
	return true
}

// Close stops any spin and disables the wheel for good.
func (w *Wheel) Close() {
	w.Stop()
	w.closed = true
}

func (w *Wheel) tick() {
	w.cancel = nil
	s := w.current
	if w.closed || w.phase != Spinning || s == nil {
		return
	}

	elapsed := w.opts.Clock.Now().Sub(s.started)
	progress := 1.0
	if s.duration > 0 {
		progress = math.Min(float64(elapsed)/float64(s.duration), 1)
	}
	if progress < 0 {
		progress = 0
	}
	w.progress = progress

	eased := Ease(progress, w.opts.EaseExponent)
	w.rotation = Normalize(s.startRotation + s.target*eased)

	if progress < 1 {
		w.frame(progress)
		w.cancel = w.opts.Scheduler.Schedule(w.tick)
		return
	}

	w.phase = Idle
	w.current = nil
	w.frame(1)

	winner := s.snapshot[Resolve(w.rotation, len(s.snapshot), w.opts.PointerAngle)]
	if w.opts.OnResolved != nil {
		w.opts.OnResolved(winner)
	}
}

func (w *Wheel) frame(progress float64) {
	if w.opts.OnFrame == nil {
		return
	}
	w.opts.OnFrame(Frame{
		Rotation: w.rotation,
		Progress: progress,
		Phase:    w.phase,
	})
}

// Phase returns the current animation phase.
func (w *Wheel) Phase() Phase {
	return w.phase
}

// Rotation returns the current display angle in [0, 360).
func (w *Wheel) Rotation() float64 {
	return w.rotation
}

// Progress returns how far the latest spin got: 1 once it has finished,
// 0 before its first frame or after Stop.
func (w *Wheel) Progress() float64 {
	return w.progress
}

// PointerAngle returns the fixed angle the pointer sits at.
func (w *Wheel) PointerAngle() float64 {
	return w.opts.PointerAngle
}

// Items returns a copy of the live item list.
func (w *Wheel) Items() []Item {
	return slices.Clone(w.items)
}

// Segments returns the slices as drawn right now: the spin's snapshot while
// spinning, the live list otherwise.
func (w *Wheel) Segments() []Segment {
	if w.current != nil {
		return segments(w.current.snapshot, w.rotation)
	}
	return segments(w.items, w.rotation)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
