package kyc

import "bytes"

// Phase is a discrete step of the capture workflow.
type Phase int

const (
	PhaseFaceCapture Phase = iota
	PhaseFaceConfirm
	PhaseIDCapture
	PhaseIDConfirm
	PhaseSubmitting
	PhaseSuccess
	PhaseFailure
)

var phaseNames = [...]string{
	PhaseFaceCapture: "face_capture",
	PhaseFaceConfirm: "face_confirm",
	PhaseIDCapture:   "id_capture",
	PhaseIDConfirm:   "id_confirm",
	PhaseSubmitting:  "submitting",
	PhaseSuccess:     "success",
	PhaseFailure:     "failure",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// MarshalText renders the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Terminal reports whether the phase ends a verification attempt.
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseFailure
}

// NeedsCamera reports whether the phase shows live video.
func (p Phase) NeedsCamera() bool {
	return p == PhaseFaceCapture || p == PhaseIDCapture
}

// Slot names the image slot a phase writes to.
type Slot string

const (
	SlotNone Slot = ""
	SlotFace Slot = "face"
	SlotID   Slot = "id"
)

// Slot returns the slot that is writable in the phase, if any.
func (p Phase) Slot() Slot {
	switch p {
	case PhaseFaceCapture, PhaseFaceConfirm:
		return SlotFace
	case PhaseIDCapture, PhaseIDConfirm:
		return SlotID
	default:
		return SlotNone
	}
}

// CapturedImage is an encoded still taken from the camera. It cannot be
// mutated after construction; retaking replaces the whole value.
type CapturedImage struct {
	encoded  []byte
	mimeType string
	width    int
	height   int
}

// NewCapturedImage copies encoded so later writes by the caller cannot leak in.
func NewCapturedImage(encoded []byte, mimeType string, width, height int) CapturedImage {
	return CapturedImage{
		encoded:  bytes.Clone(encoded),
		mimeType: mimeType,
		width:    width,
		height:   height,
	}
}

// Encoded returns a copy of the portable encoded buffer.
func (c CapturedImage) Encoded() []byte { return bytes.Clone(c.encoded) }

func (c CapturedImage) MIMEType() string { return c.mimeType }
func (c CapturedImage) Width() int       { return c.width }
func (c CapturedImage) Height() int      { return c.height }

// IsZero reports whether the image slot is empty.
func (c CapturedImage) IsZero() bool { return len(c.encoded) == 0 }

// Payload is upload-ready image content.
type Payload struct {
	Bytes    []byte
	MIMEType string
}

// VerificationRequest is the pair of images sent to the verification backend.
type VerificationRequest struct {
	Name   string
	Source Payload
	Target Payload
}

// NewVerificationRequest builds a request only when both payloads are present.
func NewVerificationRequest(name string, source, target Payload) (VerificationRequest, error) {
	if len(source.Bytes) == 0 || len(target.Bytes) == 0 {
		return VerificationRequest{}, ErrImagesRequired
	}
	return VerificationRequest{Name: name, Source: source, Target: target}, nil
}

// VerificationResult is the verdict returned by the backend.
type VerificationResult struct {
	Similarity bool `json:"similarity"`
}
