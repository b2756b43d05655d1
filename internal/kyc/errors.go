package kyc

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the workflow can surface to the user.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindPermission
	KindCapture
	KindEncoding
	KindIncomplete
	KindNetwork
	KindServer
	KindProtocol
	KindUnknown
)

var kindNames = [...]string{
	KindNone:       "none",
	KindPermission: "permission",
	KindCapture:    "capture",
	KindEncoding:   "encoding",
	KindIncomplete: "incomplete",
	KindNetwork:    "network",
	KindServer:     "server",
	KindProtocol:   "protocol",
	KindUnknown:    "unknown",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// MarshalText lets kinds appear by name in JSON views.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ErrImagesRequired is returned when a submission is attempted without both images.
var ErrImagesRequired = errors.New("both face and ID card images are required")

// Reason details why a capture or encoding step failed.
type Reason string

const (
	ReasonNotReady             Reason = "not_ready"
	ReasonReadFailed           Reason = "read_failed"
	ReasonMalformed            Reason = "malformed"
	ReasonEmptyFrame           Reason = "empty_frame"
	ReasonInvalidResponseShape Reason = "invalid_response_shape"
)

// PermissionError means the camera was denied or is unavailable.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return "camera permission denied"
	}
	return fmt.Sprintf("camera permission denied: %v", e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// CaptureError means a frame could not be taken. It is recoverable locally.
type CaptureError struct {
	Reason Reason
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture failed: %s", e.Reason)
	}
	return fmt.Sprintf("capture failed: %s: %v", e.Reason, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// EncodingError means an image buffer could not be encoded or decoded.
type EncodingError struct {
	Reason Reason
	Detail string
	Err    error
}

func (e *EncodingError) Error() string {
	msg := fmt.Sprintf("image encoding: %s", e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EncodingError) Unwrap() error { return e.Err }

// NetworkError means no response was received from the verification service.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("verification service unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response from the verification service.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("verification service error %d: %s", e.Status, e.Message)
}

// ProtocolError is a 2xx response whose body is not a valid verdict.
type ProtocolError struct {
	Reason Reason
	Status int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("verification protocol error (status %d): %s", e.Status, e.Reason)
}

// UnknownError is any other transport-level failure.
type UnknownError struct {
	Err error
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("verification request failed: %v", e.Err)
}

func (e *UnknownError) Unwrap() error { return e.Err }

// Failure is the user-visible form of an error.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Status  int       `json:"status,omitempty"`
	Message string    `json:"message"`
}

const (
	MessagePermission = "The permission was denied or camera is not available. Please check your device settings."
	MessageNotReady   = "Camera is not ready or video stream is invalid. Please try again."
	MessageReadFailed = "Could not read a frame from the camera. Please try again."
	MessageEncoding   = "Image conversion failed. Please try again."
	MessageIncomplete = "Both face and ID card images are required for verification."
	MessageNetwork    = "Can't connect to server. Please check your internet connection."
	MessageProtocol   = "invalid response."
	MessageUnknown    = "An unknown error occurred while setting up the request."
)

// FailureOf maps err onto the failure taxonomy. A nil error yields nil.
func FailureOf(err error) *Failure {
	if err == nil {
		return nil
	}

	var (
		permErr     *PermissionError
		captureErr  *CaptureError
		encodingErr *EncodingError
		networkErr  *NetworkError
		serverErr   *ServerError
		protocolErr *ProtocolError
	)

	switch {
	case errors.As(err, &permErr):
		return &Failure{Kind: KindPermission, Message: MessagePermission}
	case errors.As(err, &captureErr):
		if captureErr.Reason == ReasonReadFailed {
			return &Failure{Kind: KindCapture, Message: MessageReadFailed}
		}
		return &Failure{Kind: KindCapture, Message: MessageNotReady}
	case errors.As(err, &encodingErr):
		return &Failure{Kind: KindEncoding, Message: MessageEncoding}
	case errors.Is(err, ErrImagesRequired):
		return &Failure{Kind: KindIncomplete, Message: MessageIncomplete}
	case errors.As(err, &networkErr):
		return &Failure{Kind: KindNetwork, Message: MessageNetwork}
	case errors.As(err, &serverErr):
		return &Failure{Kind: KindServer, Status: serverErr.Status, Message: serverErr.Message}
	case errors.As(err, &protocolErr):
		return &Failure{Kind: KindProtocol, Status: protocolErr.Status, Message: MessageProtocol}
	default:
		return &Failure{Kind: KindUnknown, Message: MessageUnknown}
	}
}
