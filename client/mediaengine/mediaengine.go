// Package mediaengine defines the external Media Engine contract the
// Playback Controller mediates against — decode/render is explicitly
// out of scope, so this package is the seam and a development stub,
// never a real decoder.
package mediaengine

// Engine is the local media decoder/player the Playback Controller
// drives. A real implementation wraps a platform media framework; it is
// not part of this system's scope.
type Engine interface {
	Play()
	Pause()
	Seek(positionSeconds float64)
	SetRate(rate float64)
	Stop()

	Position() float64
	Duration() float64
	IsPlaying() bool
}

// Stub is a no-op Engine useful for tests and headless operation: it
// tracks the state a real engine would report without driving any
// decoder.
type Stub struct {
	playing  bool
	position float64
	duration float64
	rate     float64
}

// NewStub constructs a Stub with the given duration.
func NewStub(durationSeconds float64) *Stub {
	return &Stub{duration: durationSeconds, rate: 1.0}
}

func (s *Stub) Play()                        { s.playing = true }
func (s *Stub) Pause()                       { s.playing = false }
func (s *Stub) Seek(positionSeconds float64) { s.position = positionSeconds }
func (s *Stub) SetRate(rate float64)         { s.rate = rate }
func (s *Stub) Stop()                        { s.playing = false; s.position = 0 }
func (s *Stub) Position() float64            { return s.position }
func (s *Stub) Duration() float64            { return s.duration }
func (s *Stub) IsPlaying() bool              { return s.playing }
