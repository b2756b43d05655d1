package camera

import (
	"errors"
	"image"
	"image/draw"

	"github.com/example/ekyc-capture/internal/kyc"
)

var errNoFrame = errors.New("camera: stream returned no frame")

// Frame is a raw still sized to the stream's native resolution.
type Frame struct {
	Image *image.RGBA
}

func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dx()
}

func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dy()
}

// Snapshot copies the current frame of a ready handle. It never scales or
// crops, and refuses handles that are not ready or report zero dimensions.
func Snapshot(h *Handle) (Frame, error) {
	if h == nil {
		return Frame{}, &kyc.CaptureError{Reason: kyc.ReasonNotReady}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released || !h.ready || h.stream == nil || h.width <= 0 || h.height <= 0 {
		return Frame{}, &kyc.CaptureError{Reason: kyc.ReasonNotReady}
	}

	src, err := h.stream.Frame()
	if err != nil {
		return Frame{}, &kyc.CaptureError{Reason: kyc.ReasonReadFailed, Err: err}
	}
	if src == nil || src.Bounds().Empty() {
		return Frame{}, &kyc.CaptureError{Reason: kyc.ReasonReadFailed, Err: errNoFrame}
	}

	dst := image.NewRGBA(image.Rect(0, 0, h.width, h.height))
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return Frame{Image: dst}, nil
}
