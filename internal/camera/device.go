// Package camera owns the lifecycle of the live video stream used by the
// capture workflow and takes still frames from it.
package camera

import (
	"context"
	"image"
)

// Facing selects which physical camera a device should open.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Device grants video streams. Open blocks until the stream is granted or
// refused; a refusal is reported as an error.
type Device interface {
	Open(ctx context.Context, facing Facing) (Stream, error)
}

// Stream is a granted video stream.
type Stream interface {
	// Metadata blocks until the stream knows its native dimensions.
	Metadata(ctx context.Context) (width, height int, err error)
	// Play (re)starts frame delivery.
	Play() error
	// Frame returns the most recent visual frame.
	Frame() (image.Image, error)
	// Stop ends every underlying track and detaches the sink. It must be
	// safe to call more than once.
	Stop() error
}
