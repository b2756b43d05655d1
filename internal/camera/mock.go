package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
)

// MockDevice is an in-memory Device for tests and camera-less demos. It
// renders a deterministic gradient at the configured resolution.
type MockDevice struct {
	mu          sync.Mutex
	width       int
	height      int
	openErr     error
	metadataErr error
	frameErr    error
	hold        chan struct{}
	opens       int
	streams     []*MockStream
}

// NewMockDevice returns a device producing width x height frames.
func NewMockDevice(width, height int) *MockDevice {
	return &MockDevice{width: width, height: height}
}

// FailOpen makes subsequent Open calls fail with err.
func (d *MockDevice) FailOpen(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// FailMetadata makes readiness of subsequent streams fail with err.
func (d *MockDevice) FailMetadata(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metadataErr = err
}

// FailFrames makes Frame fail with err.
func (d *MockDevice) FailFrames(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameErr = err
}

// SetDimensions changes the resolution reported by new streams.
func (d *MockDevice) SetDimensions(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = width, height
}

// HoldMetadata delays metadata delivery until the returned func is called.
func (d *MockDevice) HoldMetadata() (releaseHold func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan struct{})
	d.hold = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			close(ch)
			d.mu.Lock()
			if d.hold == ch {
				d.hold = nil
			}
			d.mu.Unlock()
		})
	}
}

// Opens counts granted streams.
func (d *MockDevice) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Live counts streams that have not been stopped.
func (d *MockDevice) Live() int {
	d.mu.Lock()
	streams := append([]*MockStream(nil), d.streams...)
	d.mu.Unlock()

	live := 0
	for _, s := range streams {
		if !s.Stopped() {
			live++
		}
	}
	return live
}

func (d *MockDevice) Open(ctx context.Context, facing Facing) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	if facing == "" {
		return nil, errors.New("mock camera: facing mode required")
	}
	d.opens++
	s := &MockStream{device: d, width: d.width, height: d.height, hold: d.hold}
	d.streams = append(d.streams, s)
	return s, nil
}

// MockStream is the Stream produced by MockDevice.
type MockStream struct {
	device *MockDevice
	width  int
	height int
	hold   chan struct{}

	mu      sync.Mutex
	playing bool
	stopped bool
}

func (s *MockStream) Metadata(ctx context.Context) (int, int, error) {
	if s.hold != nil {
		select {
		case <-s.hold:
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		}
	}

	s.device.mu.Lock()
	err := s.device.metadataErr
	s.device.mu.Unlock()
	if err != nil {
		return 0, 0, err
	}
	return s.width, s.height, nil
}

func (s *MockStream) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("mock camera: stream stopped")
	}
	s.playing = true
	return nil
}

func (s *MockStream) Frame() (image.Image, error) {
	s.device.mu.Lock()
	err := s.device.frameErr
	s.device.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || !s.playing {
		return nil, errors.New("mock camera: stream not playing")
	}

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8(x ^ y), A: 0xff})
		}
	}
	return img, nil
}

func (s *MockStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.playing = false
	return nil
}

// Stopped reports whether Stop has been called.
func (s *MockStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
