// Package playback reveals a message sequence one message at a time.
//
// A Driver owns the reveal cursor (how many messages are visible), whether
// playback is running and the delay between reveals. While playing exactly
// one timer is armed; every state change cancels it and, if still playing,
// arms a fresh one for the full delay. Each timer carries a generation number
// so a fire that raced with a cancellation is discarded.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// MinSpeed is the shortest delay between reveals.
	MinSpeed = 300 * time.Millisecond
	// MaxSpeed is the longest delay between reveals.
	MaxSpeed = 2000 * time.Millisecond
	// DefaultSpeed is used when no speed is configured.
	DefaultSpeed = 900 * time.Millisecond
)

// ClampSpeed bounds d to [MinSpeed, MaxSpeed].
func ClampSpeed(d time.Duration) time.Duration {
	return min(max(d, MinSpeed), MaxSpeed)
}

// State is a snapshot of a Driver. VisibleCount is always within
// [0, Length].
type State struct {
	VisibleCount int
	Length       int
	Playing      bool
	Speed        time.Duration
}

// AtStart reports whether nothing is revealed.
func (s State) AtStart() bool { return s.VisibleCount == 0 }

// AtEnd reports whether every message is revealed.
func (s State) AtEnd() bool { return s.VisibleCount >= s.Length }

// Driver advances the reveal cursor on a clock. All methods are safe for
// concurrent use. Observers registered with OnChange are called after every
// transition, outside the driver's lock, from the goroutine that caused it.
type Driver struct {
	clock  clockwork.Clock
	logger *slog.Logger

	mu        sync.Mutex
	visible   int
	length    int
	playing   bool
	speed     time.Duration
	gen       uint64
	timer     clockwork.Timer
	closed    bool
	observers []func(State)
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the clock driving reveals. Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithSpeed sets the initial delay, clamped to [MinSpeed, MaxSpeed].
func WithSpeed(speed time.Duration) Option {
	return func(d *Driver) { d.speed = ClampSpeed(speed) }
}

// WithLogger sets the logger used for debug traces.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// NewDriver returns a paused Driver over a sequence of length messages with
// nothing revealed.
func NewDriver(length int, opts ...Option) *Driver {
	d := &Driver{
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		length: max(length, 0),
		speed:  DefaultSpeed,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnChange registers fn to be called with the new state after every
// transition.
func (d *Driver) OnChange(fn func(State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}

// State returns a snapshot.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

// Play starts revealing. With everything already visible (including an empty
// sequence) it settles back to paused immediately.
func (d *Driver) Play() {
	d.update("play", func() { d.playing = true })
}

// Pause stops revealing and cancels the pending reveal.
func (d *Driver) Pause() {
	d.update("pause", func() { d.playing = false })
}

// Toggle is Pause while playing, Play otherwise.
func (d *Driver) Toggle() {
	d.update("toggle", func() { d.playing = !d.playing })
}

// Next reveals one more message, if any. Allowed while playing.
func (d *Driver) Next() {
	d.update("next", func() { d.visible = min(d.visible+1, d.length) })
}

// Prev hides the last revealed message, if any. Allowed while playing.
func (d *Driver) Prev() {
	d.update("prev", func() { d.visible = max(d.visible-1, 0) })
}

// Reset pauses and hides everything.
func (d *Driver) Reset() {
	d.update("reset", func() {
		d.playing = false
		d.visible = 0
	})
}

// SetSpeed changes the delay between reveals, clamped to [MinSpeed,
// MaxSpeed]. A pending reveal is replaced by one that waits the full new
// delay, so a reveal is never fired early.
func (d *Driver) SetSpeed(speed time.Duration) {
	d.update("speed", func() { d.speed = ClampSpeed(speed) })
}

// SetLength reports that the sequence now has n messages. The cursor is
// clamped immediately.
func (d *Driver) SetLength(n int) {
	d.update("length", func() {
		d.length = max(n, 0)
		d.visible = min(d.visible, d.length)
	})
}

// Load switches to a new sequence of n messages: paused, nothing visible.
func (d *Driver) Load(n int) {
	d.update("load", func() {
		d.length = max(n, 0)
		d.visible = 0
		d.playing = false
	})
}

// Close cancels the pending reveal. Later operations are ignored.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.playing = false
	d.scheduleLocked()
}

func (d *Driver) stateLocked() State {
	return State{
		VisibleCount: d.visible,
		Length:       d.length,
		Playing:      d.playing,
		Speed:        d.speed,
	}
}

// update applies mutate and, if anything changed, reschedules and notifies.
func (d *Driver) update(op string, mutate func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	before := d.stateLocked()
	mutate()
	if d.stateLocked() != before {
		d.scheduleLocked()
	}
	after := d.stateLocked()
	observers := d.observers
	d.mu.Unlock()

	if after == before {
		return
	}
	d.logger.Debug("playback state changed", "op", op,
		"visible", after.VisibleCount, "length", after.Length,
		"playing", after.Playing, "speed", after.Speed)
	for _, fn := range observers {
		fn(after)
	}
}

// scheduleLocked cancels the pending reveal and, while playing, arms the next
// one. Reaching the end stops playback.
func (d *Driver) scheduleLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if !d.playing || d.closed {
		return
	}
	if d.visible >= d.length {
		d.playing = false
		return
	}
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.speed, func() { d.tick(gen) })
}

func (d *Driver) tick(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen || !d.playing {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.visible = min(d.visible+1, d.length)
	d.scheduleLocked()
	after := d.stateLocked()
	observers := d.observers
	d.mu.Unlock()

	for _, fn := range observers {
		fn(after)
	}
}
