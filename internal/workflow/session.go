package workflow

import (
	"time"

	"github.com/example/ekyc-capture/internal/kyc"
)

// Permission tracks the camera grant for a session.
type Permission int

const (
	PermissionPending Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "pending"
	}
}

// MarshalText renders the permission by name.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Navigation tells the caller whether to leave the capture flow.
type Navigation int

const (
	NavigateNone Navigation = iota
	NavigateExit
	NavigateHome
)

func (n Navigation) String() string {
	switch n {
	case NavigateExit:
		return "exit"
	case NavigateHome:
		return "home"
	default:
		return "none"
	}
}

// MarshalText renders the navigation target by name.
func (n Navigation) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// Session is the state of one pass through the capture flow. The machine owns
// the live value; callers only ever see copies.
type Session struct {
	ID          string
	Operator    string
	Phase       kyc.Phase
	FaceImage   kyc.CapturedImage
	IDImage     kyc.CapturedImage
	LastError   *kyc.Failure
	Submitting  bool
	Permission  Permission
	Verdict     *kyc.VerificationResult
	CameraReady bool
	StartedAt   time.Time
}

// Image returns the image held in slot.
func (s Session) Image(slot kyc.Slot) (kyc.CapturedImage, bool) {
	switch slot {
	case kyc.SlotFace:
		return s.FaceImage, !s.FaceImage.IsZero()
	case kyc.SlotID:
		return s.IDImage, !s.IDImage.IsZero()
	default:
		return kyc.CapturedImage{}, false
	}
}

// OwnedBy reports whether operator may act on the session. Sessions started
// without an authenticated operator are open to every caller.
func (s Session) OwnedBy(operator string) bool {
	return s.Operator == "" || s.Operator == operator
}
