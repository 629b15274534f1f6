package recorder

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/joeycumines/whatsdemo/internal/encoding"
)

// captureStream samples a canvas at a fixed rate and feeds the frames to an
// encoder, stamped with their offset from the start of the stream. It is the
// only user of the encoder until it has stopped.
type captureStream struct {
	canvas  *Canvas
	enc     encoding.Encoder
	clock   clockwork.Clock
	period  time.Duration
	start   time.Time
	onError func(error)

	frame *image.RGBA
	done  chan struct{}

	mu     sync.Mutex
	frames int
	err    error
}

func newCaptureStream(canvas *Canvas, enc encoding.Encoder, clock clockwork.Clock, fps int, onError func(error)) *captureStream {
	return &captureStream{
		canvas:  canvas,
		enc:     enc,
		clock:   clock,
		period:  time.Second / time.Duration(max(fps, 1)),
		onError: onError,
		frame:   image.NewRGBA(canvas.Bounds()),
		done:    make(chan struct{}),
	}
}

// run samples immediately and then once per period until ctx is done or the
// encoder fails.
func (s *captureStream) run(ctx context.Context) {
	defer close(s.done)
	s.start = s.clock.Now()
	ticker := s.clock.NewTicker(s.period)
	defer ticker.Stop()

	if !s.sample() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil || !s.sample() {
				return
			}
		}
	}
}

func (s *captureStream) sample() bool {
	if !s.canvas.CopyTo(s.frame) {
		return false
	}
	if err := s.enc.WriteFrame(s.frame, s.clock.Since(s.start)); err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		if s.onError != nil {
			s.onError(err)
		}
		return false
	}
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
	return true
}

// wait blocks until run has returned, then reports the frames written and
// the encoder error that ended the stream, if any.
func (s *captureStream) wait() (int, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames, s.err
}
