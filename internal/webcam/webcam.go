// Package webcam adapts an OpenCV capture device to camera.Device.
package webcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/example/ekyc-capture/internal/camera"
)

const metadataPollInterval = 30 * time.Millisecond

var errStreamStopped = errors.New("webcam: stream stopped")

// Device opens a local video capture device by index.
type Device struct {
	ID     int
	Width  int
	Height int
	logger *zap.Logger
}

// NewDevice returns a device for the OpenCV capture index id. Width and height
// are requested from the driver; zero leaves the driver default.
func NewDevice(id, width, height int, logger *zap.Logger) *Device {
	return &Device{ID: id, Width: width, Height: height, logger: logger.Named("webcam")}
}

// Open grants a stream. Desktop capture devices have no facing selector, so
// the facing mode is only logged.
func (d *Device) Open(ctx context.Context, facing camera.Facing) (camera.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	capture, err := gocv.OpenVideoCapture(d.ID)
	if err != nil {
		return nil, fmt.Errorf("open device %d: %w", d.ID, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, fmt.Errorf("device %d unavailable", d.ID)
	}

	if d.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(d.Width))
	}
	if d.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(d.Height))
	}

	d.logger.Info("video capture opened", zap.Int("device", d.ID), zap.String("facing", string(facing)))
	return &stream{capture: capture, frame: gocv.NewMat()}, nil
}

type stream struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	frame   gocv.Mat
	playing bool
	stopped bool
}

// Metadata reads frames until the driver delivers a non-empty one; its size
// is the native resolution.
func (s *stream) Metadata(ctx context.Context) (int, int, error) {
	ticker := time.NewTicker(metadataPollInterval)
	defer ticker.Stop()

	for {
		width, height, err := s.readDimensions()
		if err != nil {
			return 0, 0, err
		}
		if width > 0 && height > 0 {
			return width, height, nil
		}

		select {
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *stream) readDimensions() (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, 0, errStreamStopped
	}
	if !s.capture.Read(&s.frame) || s.frame.Empty() {
		return 0, 0, nil
	}
	return s.frame.Cols(), s.frame.Rows(), nil
}

func (s *stream) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errStreamStopped
	}
	s.playing = true
	return nil
}

func (s *stream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || !s.playing {
		return nil, errStreamStopped
	}
	if !s.capture.Read(&s.frame) {
		return nil, errors.New("webcam: cannot read frame")
	}
	if s.frame.Empty() {
		return nil, errors.New("webcam: frame is empty")
	}
	return s.frame.ToImage()
}

func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	s.playing = false

	captureErr := s.capture.Close()
	matErr := s.frame.Close()
	return errors.Join(captureErr, matErr)
}
