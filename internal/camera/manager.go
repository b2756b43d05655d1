package camera

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/example/ekyc-capture/internal/kyc"
)

var (
	// ErrSuperseded is returned to an Acquire that was overtaken by a newer one.
	ErrSuperseded = errors.New("camera: acquisition superseded")

	// ErrReleased is returned when waiting on a handle that has been released.
	ErrReleased = errors.New("camera: handle released")
)

// Handle is the live reference to an acquired stream.
type Handle struct {
	readyCh chan struct{}
	cancel  context.CancelFunc

	mu       sync.Mutex
	stream   Stream
	ready    bool
	released bool
	width    int
	height   int
	err      error
}

func newHandle(stream Stream) (*Handle, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handle{
		readyCh: make(chan struct{}),
		cancel:  cancel,
		stream:  stream,
	}, ctx
}

// Ready reports whether stream metadata has arrived and playback started.
func (h *Handle) Ready() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready && !h.released
}

// Dimensions returns the native resolution reported by the stream.
func (h *Handle) Dimensions() (int, int) {
	if h == nil {
		return 0, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

// Err returns the failure that prevented the handle from becoming ready.
func (h *Handle) Err() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// WaitReady blocks until readiness is resolved, the handle is released or ctx ends.
func (h *Handle) WaitReady(ctx context.Context) error {
	if h == nil {
		return ErrReleased
	}
	select {
	case <-h.readyCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	if h.released {
		return ErrReleased
	}
	return nil
}

func (h *Handle) awaitMetadata(ctx context.Context, logger *zap.Logger) {
	defer close(h.readyCh)

	h.mu.Lock()
	stream := h.stream
	h.mu.Unlock()
	if stream == nil {
		return
	}

	width, height, err := stream.Metadata(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	if err != nil {
		h.err = &kyc.PermissionError{Err: err}
		logger.Warn("camera metadata failed", zap.Error(err))
		return
	}

	h.width, h.height = width, height
	if err := stream.Play(); err != nil {
		h.err = &kyc.PermissionError{Err: err}
		logger.Warn("camera playback failed", zap.Error(err))
		return
	}
	h.ready = true
	logger.Debug("camera ready", zap.Int("width", width), zap.Int("height", height))
}

func (h *Handle) release() error {
	if h == nil {
		return nil
	}

	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	h.ready = false
	stream := h.stream
	h.stream = nil
	h.mu.Unlock()

	h.cancel()
	if stream == nil {
		return nil
	}
	return stream.Stop()
}

// Manager hands out at most one live Handle at a time.
type Manager struct {
	device Device
	facing Facing
	logger *zap.Logger

	mu         sync.Mutex
	current    *Handle
	generation uint64
}

// NewManager constructs a manager that opens user-facing streams on device.
func NewManager(device Device, logger *zap.Logger) *Manager {
	return &Manager{
		device: device,
		facing: FacingUser,
		logger: logger.Named("camera"),
	}
}

// Acquire releases any previous handle and opens a new stream. It returns as
// soon as the device grants the stream; readiness follows asynchronously once
// the stream reports its dimensions.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	if err := prev.release(); err != nil {
		m.logger.Warn("failed to stop previous stream", zap.Error(err))
	}

	stream, err := m.device.Open(ctx, m.facing)
	if err != nil {
		if stream != nil {
			_ = stream.Stop()
		}
		m.logger.Warn("camera acquisition refused", zap.Error(err))
		return nil, &kyc.PermissionError{Err: err}
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		if err := stream.Stop(); err != nil {
			m.logger.Warn("failed to stop superseded stream", zap.Error(err))
		}
		return nil, ErrSuperseded
	}
	handle, readyCtx := newHandle(stream)
	m.current = handle
	m.mu.Unlock()

	go handle.awaitMetadata(readyCtx, m.logger)
	m.logger.Debug("camera acquired", zap.String("facing", string(m.facing)))
	return handle, nil
}

// Release stops the handle's stream. It is safe on nil or released handles.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}

	m.mu.Lock()
	if m.current == h {
		m.current = nil
	}
	m.mu.Unlock()

	if err := h.release(); err != nil {
		m.logger.Warn("failed to stop camera stream", zap.Error(err))
		return
	}
	m.logger.Debug("camera released")
}

// Close releases whatever handle is live and invalidates pending acquisitions.
func (m *Manager) Close() {
	m.mu.Lock()
	current := m.current
	m.current = nil
	m.generation++
	m.mu.Unlock()

	m.Release(current)
}
