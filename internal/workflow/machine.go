package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ekyc-capture/internal/auth"
	"github.com/example/ekyc-capture/internal/camera"
	"github.com/example/ekyc-capture/internal/handoff"
	"github.com/example/ekyc-capture/internal/kyc"
	"github.com/example/ekyc-capture/internal/logging"
)

var (
	// ErrNoSession is returned when an operation needs a session and none is active.
	ErrNoSession = errors.New("workflow: no active capture session")

	// ErrInvalidTransition is returned when the operation does not apply to the current phase.
	ErrInvalidTransition = errors.New("workflow: operation not allowed in current phase")

	// ErrSubmissionPending is returned while a verification request is in flight.
	ErrSubmissionPending = errors.New("workflow: submission already in progress")

	// ErrMissingPrerequisite is returned when ID capture is entered without a stored face image.
	ErrMissingPrerequisite = errors.New("workflow: face image missing")

	// ErrNoCamera is returned when waiting for a camera that was never acquired.
	ErrNoCamera = errors.New("workflow: no camera acquired")

	// ErrNotOwner is returned when the caller is not the operator who started the session.
	ErrNotOwner = errors.New("workflow: session belongs to another operator")
)

// MessageMissingFace is shown when the ID phase is entered without a face image.
const MessageMissingFace = "Face image not found. Please capture your face first."

// Cameras acquires and releases the single live camera handle.
type Cameras interface {
	Acquire(ctx context.Context) (*camera.Handle, error)
	Release(h *camera.Handle)
}

// Codec converts camera frames to captured images and back to upload bytes.
type Codec interface {
	Encode(frame camera.Frame) (kyc.CapturedImage, error)
	Decode(img kyc.CapturedImage) (kyc.Payload, error)
}

// Option customises a Machine.
type Option func(*Machine)

// WithHandoff stores the confirmed face image under the session id so the ID
// phase can be resumed from another page.
func WithHandoff(store handoff.Store) Option {
	return func(m *Machine) { m.handoff = store }
}

// WithSubjectName sets the literal subject identifier sent with each request.
func WithSubjectName(name string) Option {
	return func(m *Machine) { m.subject = name }
}

// Machine is the capture state machine. Every transition runs under one lock;
// only the verification call itself runs outside it.
type Machine struct {
	cameras  Cameras
	codec    Codec
	verifier kyc.Verifier
	handoff  handoff.Store
	subject  string
	logger   *zap.Logger
	metrics  *metrics
	now      func() time.Time

	mu        sync.Mutex
	session   *Session
	handle    *camera.Handle
	deniedErr error
}

// NewMachine wires the machine to its collaborators.
func NewMachine(cameras Cameras, codec Codec, verifier kyc.Verifier, logger *zap.Logger, opts ...Option) *Machine {
	m := &Machine{
		cameras:  cameras,
		codec:    codec,
		verifier: verifier,
		subject:  "string",
		logger:   logger.Named("workflow"),
		metrics:  newMetrics(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start discards any current session and begins a new one at face capture,
// owned by the operator carried in ctx. Any operator may restart the kiosk.
func (m *Machine) Start(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	operator, _ := auth.GetOperator(ctx)
	m.teardownLocked(ctx, "restart", true)
	s := m.newSessionLocked(uuid.NewString(), operator)
	logging.WithOperation(m.logger, "workflow.start", s.ID).Info("capture session started")

	err := m.acquireLocked(ctx, s)
	return m.snapshotLocked(), err
}

// Resume enters ID capture for a session whose face image was confirmed on
// another page. Without a stored face image the flow restarts at face capture.
// Only the operator who confirmed the face may resume it.
func (m *Machine) Resume(ctx context.Context, sessionID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	operator, _ := auth.GetOperator(ctx)
	opLogger := logging.WithOperation(m.logger, "workflow.resume", sessionID)
	if m.session != nil && m.session.ID == sessionID && !m.session.OwnedBy(operator) {
		opLogger.Warn("resume refused", zap.String("operator", operator))
		return Session{}, ErrNotOwner
	}

	var (
		entry handoff.Entry
		err   = handoff.ErrNotFound
	)
	if m.handoff != nil {
		entry, err = m.handoff.Get(ctx, sessionID)
	}
	if err == nil && entry.Operator != "" && entry.Operator != operator {
		opLogger.Warn("resume refused", zap.String("operator", operator))
		return Session{}, ErrNotOwner
	}

	m.teardownLocked(ctx, "resume", m.session != nil && m.session.ID != sessionID)
	s := m.newSessionLocked(sessionID, operator)
	face := entry.Image
	if err != nil || face.IsZero() {
		if !errors.Is(err, handoff.ErrNotFound) {
			opLogger.Error("failed to load source image", zap.Error(err))
		}
		opLogger.Warn("source image missing, redirecting to face capture")
		s.LastError = &kyc.Failure{Kind: kyc.KindIncomplete, Message: MessageMissingFace}
		if acqErr := m.acquireLocked(ctx, s); acqErr != nil {
			return m.snapshotLocked(), errors.Join(ErrMissingPrerequisite, acqErr)
		}
		return m.snapshotLocked(), ErrMissingPrerequisite
	}

	s.FaceImage = face
	s.Phase = kyc.PhaseIDCapture
	opLogger.Info("capture session resumed at id capture")
	err = m.acquireLocked(ctx, s)
	return m.snapshotLocked(), err
}

// Capture takes a still for the current capture phase. A camera that is not
// ready rejects the call and leaves the session untouched.
func (m *Machine) Capture(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.activeLocked(ctx)
	if err != nil {
		return m.refusedLocked(err), err
	}
	if !s.Phase.NeedsCamera() {
		return m.snapshotLocked(), ErrInvalidTransition
	}
	opLogger := logging.WithOperation(m.logger, "workflow.capture", s.ID)

	frame, err := camera.Snapshot(m.handle)
	if err != nil {
		opLogger.Info("capture rejected", zap.Error(err), zap.Stringer("phase", s.Phase))
		return m.snapshotLocked(), err
	}
	img, err := m.codec.Encode(frame)
	if err != nil {
		opLogger.Error("failed to encode frame", zap.Error(err))
		return m.snapshotLocked(), err
	}

	m.releaseLocked()
	switch s.Phase {
	case kyc.PhaseFaceCapture:
		s.FaceImage = img
		s.Phase = kyc.PhaseFaceConfirm
	case kyc.PhaseIDCapture:
		s.IDImage = img
		s.Phase = kyc.PhaseIDConfirm
	}
	s.LastError = nil

	opLogger.Info("image captured", zap.Stringer("phase", s.Phase), zap.Int("width", img.Width()), zap.Int("height", img.Height()))
	return m.snapshotLocked(), nil
}

// Confirm accepts the image on screen. Confirming the face moves on to ID
// capture; confirming the ID image submits the pair.
func (m *Machine) Confirm(ctx context.Context) (Session, error) {
	m.mu.Lock()

	s, err := m.activeLocked(ctx)
	if err != nil {
		defer m.mu.Unlock()
		return m.refusedLocked(err), err
	}

	switch s.Phase {
	case kyc.PhaseFaceConfirm:
		defer m.mu.Unlock()
		s.Phase = kyc.PhaseIDCapture
		s.LastError = nil
		m.storeHandoffLocked(ctx, s)
		err := m.acquireLocked(ctx, s)
		return m.snapshotLocked(), err
	case kyc.PhaseIDConfirm:
		m.mu.Unlock()
		return m.Submit(ctx)
	default:
		defer m.mu.Unlock()
		return m.snapshotLocked(), ErrInvalidTransition
	}
}

// Retake discards the image of the current confirm phase and reopens the camera.
func (m *Machine) Retake(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.activeLocked(ctx)
	if err != nil {
		return m.refusedLocked(err), err
	}
	if err := m.retakeLocked(ctx, s); err != nil {
		return m.snapshotLocked(), err
	}
	return m.snapshotLocked(), nil
}

func (m *Machine) retakeLocked(ctx context.Context, s *Session) error {
	switch s.Phase {
	case kyc.PhaseFaceConfirm:
		s.FaceImage = kyc.CapturedImage{}
		s.Phase = kyc.PhaseFaceCapture
		m.consumeHandoffLocked(ctx, s)
	case kyc.PhaseIDConfirm:
		s.IDImage = kyc.CapturedImage{}
		s.Phase = kyc.PhaseIDCapture
	default:
		return ErrInvalidTransition
	}
	s.LastError = nil
	logging.WithOperation(m.logger, "workflow.retake", s.ID).Info("image discarded", zap.Stringer("phase", s.Phase))
	return m.acquireLocked(ctx, s)
}

// Back steps back one phase. Holding an unconfirmed image means retake; on
// the first phase, or after the camera was denied, it leaves the workflow.
func (m *Machine) Back(ctx context.Context) (Session, Navigation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncCameraLocked()
	s := m.session
	if s == nil {
		return Session{}, NavigateExit, nil
	}
	if operator, _ := auth.GetOperator(ctx); !s.OwnedBy(operator) {
		return Session{}, NavigateNone, ErrNotOwner
	}
	if s.Permission == PermissionDenied {
		m.teardownLocked(ctx, "back after permission denied", true)
		return Session{}, NavigateExit, nil
	}

	switch s.Phase {
	case kyc.PhaseFaceCapture:
		m.teardownLocked(ctx, "back from first phase", true)
		return Session{}, NavigateExit, nil
	case kyc.PhaseIDCapture:
		m.releaseLocked()
		s.Phase = kyc.PhaseFaceConfirm
		s.LastError = nil
		return m.snapshotLocked(), NavigateNone, nil
	case kyc.PhaseFaceConfirm, kyc.PhaseIDConfirm:
		err := m.retakeLocked(ctx, s)
		return m.snapshotLocked(), NavigateNone, err
	case kyc.PhaseSubmitting:
		return m.snapshotLocked(), NavigateNone, ErrSubmissionPending
	default:
		return m.snapshotLocked(), NavigateNone, ErrInvalidTransition
	}
}

// Submit sends both images for verification. It is only reachable with both
// slots filled and never runs twice concurrently.
func (m *Machine) Submit(ctx context.Context) (Session, error) {
	m.mu.Lock()

	s, err := m.activeLocked(ctx)
	if err != nil {
		defer m.mu.Unlock()
		return m.refusedLocked(err), err
	}
	opLogger := logging.WithOperation(m.logger, "workflow.submit", s.ID)

	req, err := m.prepareSubmissionLocked(s)
	if err != nil {
		defer m.mu.Unlock()
		if !errors.Is(err, ErrSubmissionPending) && !errors.Is(err, ErrInvalidTransition) {
			s.LastError = kyc.FailureOf(err)
			opLogger.Warn("submission blocked", zap.Error(err))
		}
		return m.snapshotLocked(), err
	}

	s.Submitting = true
	s.Phase = kyc.PhaseSubmitting
	s.LastError = nil
	m.mu.Unlock()

	opLogger.Info("submitting images for verification")
	started := m.now()
	result, verifyErr := m.verifier.Verify(ctx, req)
	latency := m.now().Sub(started)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.record(result, verifyErr, latency)
	if m.session != s {
		opLogger.Warn("verification finished after session ended", zap.Error(verifyErr))
		return Session{}, ErrNoSession
	}
	s.Submitting = false

	if verifyErr != nil {
		s.Phase = kyc.PhaseFailure
		s.LastError = kyc.FailureOf(verifyErr)
		opLogger.Error("verification failed", zap.Error(verifyErr), zap.Stringer("kind", s.LastError.Kind))
		return m.snapshotLocked(), verifyErr
	}

	s.Verdict = result
	if result.Similarity {
		s.Phase = kyc.PhaseSuccess
	} else {
		s.Phase = kyc.PhaseFailure
	}
	m.consumeHandoffLocked(ctx, s)
	opLogger.Info("verification verdict received", zap.Bool("similarity", result.Similarity), zap.Duration("latency", latency))
	return m.snapshotLocked(), nil
}

func (m *Machine) prepareSubmissionLocked(s *Session) (kyc.VerificationRequest, error) {
	if s.Submitting {
		return kyc.VerificationRequest{}, ErrSubmissionPending
	}
	if s.FaceImage.IsZero() || s.IDImage.IsZero() {
		return kyc.VerificationRequest{}, kyc.ErrImagesRequired
	}
	if s.Phase != kyc.PhaseIDConfirm {
		return kyc.VerificationRequest{}, ErrInvalidTransition
	}

	source, err := m.codec.Decode(s.FaceImage)
	if err != nil {
		return kyc.VerificationRequest{}, err
	}
	target, err := m.codec.Decode(s.IDImage)
	if err != nil {
		return kyc.VerificationRequest{}, err
	}
	return kyc.NewVerificationRequest(m.subject, source, target)
}

// TryAgain restarts a finished attempt at face capture with both slots cleared.
func (m *Machine) TryAgain(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.activeLocked(ctx)
	if err != nil {
		return m.refusedLocked(err), err
	}
	if !s.Phase.Terminal() {
		return m.snapshotLocked(), ErrInvalidTransition
	}

	s.FaceImage = kyc.CapturedImage{}
	s.IDImage = kyc.CapturedImage{}
	s.Verdict = nil
	s.LastError = nil
	s.Phase = kyc.PhaseFaceCapture
	m.consumeHandoffLocked(ctx, s)

	logging.WithOperation(m.logger, "workflow.try_again", s.ID).Info("capture session restarted")
	err = m.acquireLocked(ctx, s)
	return m.snapshotLocked(), err
}

// Exit abandons the workflow from any phase, releasing the camera and
// discarding the stored face image. Exiting with no session is a no-op.
func (m *Machine) Exit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}
	if operator, _ := auth.GetOperator(ctx); !m.session.OwnedBy(operator) {
		return ErrNotOwner
	}
	m.teardownLocked(ctx, "exit", true)
	return nil
}

// Close ends any session and releases the camera. Stored face images are kept
// so another process can still resume them.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked(context.Background(), "close", false)
}

// AwaitCamera blocks until the current camera is ready, fails or ctx ends.
func (m *Machine) AwaitCamera(ctx context.Context) (Session, error) {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()
	if h == nil {
		return m.Snapshot(), ErrNoCamera
	}

	err := h.WaitReady(ctx)
	return m.Snapshot(), err
}

// Snapshot returns a copy of the active session, or the zero Session when
// there is none.
func (m *Machine) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncCameraLocked()
	return m.snapshotLocked()
}

// Active reports whether a session is in progress.
func (m *Machine) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Metrics summarises verification attempts made by this process.
func (m *Machine) Metrics() MetricsSummary {
	return m.metrics.summary()
}

func (m *Machine) newSessionLocked(id, operator string) *Session {
	s := &Session{
		ID:        id,
		Operator:  operator,
		Phase:     kyc.PhaseFaceCapture,
		StartedAt: m.now().UTC(),
	}
	m.session = s
	m.deniedErr = nil
	return s
}

func (m *Machine) snapshotLocked() Session {
	if m.session == nil {
		return Session{}
	}
	cp := *m.session
	cp.CameraReady = m.handle.Ready()
	return cp
}

// refusedLocked is the session returned alongside an activeLocked error.
// Callers that do not own the session see nothing of it.
func (m *Machine) refusedLocked(err error) Session {
	if errors.Is(err, ErrNotOwner) {
		return Session{}
	}
	return m.snapshotLocked()
}

func (m *Machine) activeLocked(ctx context.Context) (*Session, error) {
	m.syncCameraLocked()
	if m.session == nil {
		return nil, ErrNoSession
	}
	if operator, _ := auth.GetOperator(ctx); !m.session.OwnedBy(operator) {
		logging.WithOperation(m.logger, "workflow.authorize", m.session.ID).Warn("operation refused", zap.String("operator", operator))
		return nil, ErrNotOwner
	}
	if m.session.Permission == PermissionDenied {
		return m.session, m.deniedErr
	}
	return m.session, nil
}

func (m *Machine) acquireLocked(ctx context.Context, s *Session) error {
	m.releaseLocked()

	h, err := m.cameras.Acquire(ctx)
	if errors.Is(err, camera.ErrSuperseded) {
		return err
	}
	if err != nil {
		m.denyLocked(s, err)
		return err
	}
	m.handle = h
	s.Permission = PermissionGranted
	return nil
}

// syncCameraLocked folds a readiness failure reported after the grant into
// the session.
func (m *Machine) syncCameraLocked() {
	if m.session == nil || m.handle == nil {
		return
	}
	if err := m.handle.Err(); err != nil {
		m.releaseLocked()
		m.denyLocked(m.session, err)
	}
}

func (m *Machine) denyLocked(s *Session, err error) {
	var permErr *kyc.PermissionError
	if !errors.As(err, &permErr) {
		err = &kyc.PermissionError{Err: err}
	}
	s.Permission = PermissionDenied
	s.LastError = kyc.FailureOf(err)
	m.deniedErr = err
	logging.WithOperation(m.logger, "workflow.camera", s.ID).Warn("camera unavailable", zap.Error(err))
}

func (m *Machine) releaseLocked() {
	m.cameras.Release(m.handle)
	m.handle = nil
}

// teardownLocked ends the current session. With discard set, a face image
// stored for a session that never reached a verdict is deleted as well.
func (m *Machine) teardownLocked(ctx context.Context, reason string, discard bool) {
	m.releaseLocked()
	if s := m.session; s != nil {
		if discard && s.Verdict == nil {
			m.consumeHandoffLocked(ctx, s)
		}
		logging.WithOperation(m.logger, "workflow.teardown", s.ID).Info("capture session ended", zap.String("reason", reason))
	}
	m.session = nil
	m.deniedErr = nil
}

func (m *Machine) storeHandoffLocked(ctx context.Context, s *Session) {
	if m.handoff == nil {
		return
	}
	entry := handoff.Entry{Image: s.FaceImage, Operator: s.Operator}
	if err := m.handoff.Put(ctx, s.ID, entry); err != nil {
		logging.WithOperation(m.logger, "workflow.handoff_put", s.ID).Error("failed to store source image", zap.Error(err))
	}
}

func (m *Machine) consumeHandoffLocked(ctx context.Context, s *Session) {
	if m.handoff == nil {
		return
	}
	if err := m.handoff.Delete(ctx, s.ID); err != nil {
		logging.WithOperation(m.logger, "workflow.handoff_delete", s.ID).Error("failed to remove source image", zap.Error(err))
	}
}
