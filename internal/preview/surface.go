package preview

import (
	"context"
	"image"
	"sync"

	"github.com/joeycumines/whatsdemo/internal/chat"
	"github.com/joeycumines/whatsdemo/internal/playback"
	"github.com/joeycumines/whatsdemo/internal/raster"
)

// Scene is the shared state the phone draws: the current script and the
// playback state. It is safe for concurrent use; the playback driver writes
// it and renderers read it.
type Scene struct {
	mu     sync.RWMutex
	script chat.Script
	state  playback.State
}

// NewScene returns a scene showing script with nothing revealed.
func NewScene(script chat.Script) *Scene {
	return &Scene{
		script: script.Clone(),
		state:  playback.State{Length: len(script.Messages)},
	}
}

// SetScript replaces the script. The visible count is clamped to the new
// length.
func (s *Scene) SetScript(script chat.Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = script.Clone()
	s.state.Length = len(script.Messages)
	s.state.VisibleCount = chat.Clamp(s.state.VisibleCount, s.state.Length)
}

// SetState records the latest playback state.
func (s *Scene) SetState(st playback.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Follow keeps the scene's playback state in step with d.
func (s *Scene) Follow(d *playback.Driver) {
	s.SetState(d.State())
	d.OnChange(s.SetState)
}

// Script returns a copy of the current script.
func (s *Scene) Script() chat.Script {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.script.Clone()
}

// State returns the latest playback state.
func (s *Scene) State() playback.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns what the phone should show now.
func (s *Scene) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	visible := chat.Clamp(s.state.VisibleCount, len(s.script.Messages))
	return Snapshot{
		Profile:  s.script.Profile,
		Messages: s.script.Messages,
		Visible:  visible,
		Typing:   s.state.Playing && visible < len(s.script.Messages),
	}
}

// Surface rasterizes a scene through a phone. It satisfies the recorder's
// surface interface.
type Surface struct {
	scene *Scene
	phone *Phone
	theme raster.Theme
}

// NewSurface returns a surface drawing scene on a phone of width x height
// cells, rendered with a fixed 256-color profile.
func NewSurface(scene *Scene, width, height int) *Surface {
	return &Surface{
		scene: scene,
		phone: NewPhone(RasterRenderer(), width, height),
		theme: raster.Theme{Foreground: raster.Indexed(255), Background: raster.Indexed(0)},
	}
}

// Bounds returns the pixel size of every rasterized frame.
func (s *Surface) Bounds() image.Rectangle {
	w, h := s.phone.Size()
	return raster.Bounds(w, h)
}

// Frame returns the styled text of the current snapshot.
func (s *Surface) Frame() string {
	return s.phone.Render(s.scene.Snapshot())
}

// Rasterize renders the current snapshot to pixels.
func (s *Surface) Rasterize(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h := s.phone.Size()
	return raster.Render(s.Frame(), raster.Options{Cols: w, Rows: h, Theme: s.theme}), nil
}
