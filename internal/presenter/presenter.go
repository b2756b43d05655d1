// Package presenter turns capture sessions into the view model a kiosk UI
// renders, and owns the actions available once an attempt has ended.
package presenter

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/example/ekyc-capture/internal/kyc"
	"github.com/example/ekyc-capture/internal/logging"
	"github.com/example/ekyc-capture/internal/workflow"
)

// ErrTryAgainUnavailable is returned when try-again is requested outside a failed attempt.
var ErrTryAgainUnavailable = errors.New("presenter: try again is only offered after a failed verification")

const totalSteps = 3

const (
	titleIdle       = "Identity verification"
	titleFace       = "Capture Your Face"
	titleID         = "Capture Your ID Card"
	titleConfirm    = "Are you sure this is clear?"
	titleSubmitting = "Verifying your identity"
	titleSuccess    = "Face verification successful!"
	titleFailure    = "Verification failed"
	titleDenied     = "Camera unavailable"

	messageStarting   = "Starting camera..."
	messageFace       = "Position your face inside the frame."
	messageID         = "Place your ID card inside the frame."
	messageSubmitting = "Please wait while we verify your images."
	messageSuccess    = "Your identity has been verified."
	messageMismatch   = "The face does not match the ID card."
)

// Controls lists which user actions are currently enabled.
type Controls struct {
	Start       bool `json:"start"`
	Capture     bool `json:"capture"`
	Confirm     bool `json:"confirm"`
	Retake      bool `json:"retake"`
	Back        bool `json:"back"`
	TryAgain    bool `json:"try_again"`
	Acknowledge bool `json:"acknowledge"`
}

// Outcome is the result shown in a terminal phase.
type Outcome struct {
	Verified bool         `json:"verified"`
	Failure  *kyc.Failure `json:"failure,omitempty"`
}

// View is everything the UI needs to draw the current step.
type View struct {
	SessionID   string              `json:"session_id,omitempty"`
	Phase       kyc.Phase           `json:"phase"`
	Title       string              `json:"title"`
	Message     string              `json:"message,omitempty"`
	Step        int                 `json:"step"`
	Steps       int                 `json:"steps"`
	Permission  workflow.Permission `json:"permission"`
	CameraReady bool                `json:"camera_ready"`
	Submitting  bool                `json:"submitting"`
	HasFace     bool                `json:"has_face"`
	HasID       bool                `json:"has_id"`
	Controls    Controls            `json:"controls"`
	Error       *kyc.Failure        `json:"error,omitempty"`
	Outcome     *Outcome            `json:"outcome,omitempty"`
	Navigate    workflow.Navigation `json:"navigate,omitempty"`
}

// Render builds the view for a session snapshot. A zero session renders the
// idle screen.
func Render(s workflow.Session) View {
	if s.ID == "" {
		return View{
			Title:    titleIdle,
			Steps:    totalSteps,
			Controls: Controls{Start: true},
		}
	}

	v := View{
		SessionID:   s.ID,
		Phase:       s.Phase,
		Steps:       totalSteps,
		Step:        stepOf(s.Phase),
		Permission:  s.Permission,
		CameraReady: s.CameraReady,
		Submitting:  s.Submitting,
		HasFace:     !s.FaceImage.IsZero(),
		HasID:       !s.IDImage.IsZero(),
		Error:       s.LastError,
	}

	if s.Permission == workflow.PermissionDenied {
		v.Title = titleDenied
		v.Message = messageOf(s.LastError, kyc.MessagePermission)
		v.Controls = Controls{Back: true}
		return v
	}

	switch s.Phase {
	case kyc.PhaseFaceCapture, kyc.PhaseIDCapture:
		v.Title = titleFace
		v.Message = messageFace
		if s.Phase == kyc.PhaseIDCapture {
			v.Title = titleID
			v.Message = messageID
		}
		if !s.CameraReady {
			v.Message = messageStarting
		}
		v.Message = messageOf(s.LastError, v.Message)
		v.Controls = Controls{Capture: s.CameraReady, Back: true}
	case kyc.PhaseFaceConfirm, kyc.PhaseIDConfirm:
		v.Title = titleConfirm
		v.Message = messageOf(s.LastError, "")
		v.Controls = Controls{Confirm: !s.Submitting, Retake: !s.Submitting, Back: !s.Submitting}
	case kyc.PhaseSubmitting:
		v.Title = titleSubmitting
		v.Message = messageSubmitting
	case kyc.PhaseSuccess:
		v.Title = titleSuccess
		v.Message = messageSuccess
		v.Outcome = &Outcome{Verified: true}
		v.Controls = Controls{Acknowledge: true}
	case kyc.PhaseFailure:
		v.Title = titleFailure
		v.Message = messageOf(s.LastError, messageMismatch)
		v.Outcome = &Outcome{Failure: s.LastError}
		v.Controls = Controls{Acknowledge: true, TryAgain: true}
	}
	return v
}

func stepOf(phase kyc.Phase) int {
	switch phase {
	case kyc.PhaseFaceCapture, kyc.PhaseFaceConfirm:
		return 1
	case kyc.PhaseIDCapture, kyc.PhaseIDConfirm:
		return 2
	default:
		return 3
	}
}

func messageOf(failure *kyc.Failure, fallback string) string {
	if failure != nil && failure.Message != "" {
		return failure.Message
	}
	return fallback
}

// Machine is the part of the workflow the presenter drives.
type Machine interface {
	Snapshot() workflow.Session
	TryAgain(ctx context.Context) (workflow.Session, error)
	Exit(ctx context.Context) error
}

// Presenter exposes the terminal-phase actions.
type Presenter struct {
	machine Machine
	logger  *zap.Logger
}

// New returns a presenter bound to machine.
func New(machine Machine, logger *zap.Logger) *Presenter {
	return &Presenter{machine: machine, logger: logger.Named("presenter")}
}

// Acknowledge ends the workflow and sends the user home.
func (p *Presenter) Acknowledge(ctx context.Context) (workflow.Navigation, error) {
	s := p.machine.Snapshot()
	if err := p.machine.Exit(ctx); err != nil {
		return workflow.NavigateNone, err
	}
	logging.WithOperation(p.logger, "presenter.acknowledge", s.ID).Info("result acknowledged", zap.Stringer("phase", s.Phase))
	return workflow.NavigateHome, nil
}

// TryAgain restarts the capture flow after a failed verification.
func (p *Presenter) TryAgain(ctx context.Context) (workflow.Session, error) {
	s := p.machine.Snapshot()
	if s.Phase != kyc.PhaseFailure || s.ID == "" {
		return s, ErrTryAgainUnavailable
	}
	return p.machine.TryAgain(ctx)
}
