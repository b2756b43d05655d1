package workflow

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/ekyc-capture/internal/auth"
	"github.com/example/ekyc-capture/internal/camera"
	"github.com/example/ekyc-capture/internal/handoff"
	"github.com/example/ekyc-capture/internal/imagecodec"
	"github.com/example/ekyc-capture/internal/kyc"
)

type stubVerifier struct {
	result  *kyc.VerificationResult
	err     error
	entered chan struct{}
	release chan struct{}

	mu       sync.Mutex
	calls    int
	requests []kyc.VerificationRequest
}

func (s *stubVerifier) Verify(ctx context.Context, req kyc.VerificationRequest) (*kyc.VerificationResult, error) {
	s.mu.Lock()
	s.calls++
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return s.result, s.err
}

func (s *stubVerifier) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestMachine(t *testing.T, verifier kyc.Verifier, opts ...Option) (*Machine, *camera.MockDevice) {
	t.Helper()
	device := camera.NewMockDevice(64, 48)
	manager := camera.NewManager(device, zap.NewNop())
	m := NewMachine(manager, imagecodec.New(), verifier, zap.NewNop(), opts...)
	t.Cleanup(m.Close)
	return m, device
}

func awaitCamera(t *testing.T, m *Machine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := m.AwaitCamera(ctx); err != nil {
		t.Fatalf("camera not ready: %v", err)
	}
}

func driveToIDConfirm(t *testing.T, m *Machine) Session {
	t.Helper()
	ctx := context.Background()

	if _, err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitCamera(t, m)
	if _, err := m.Capture(ctx); err != nil {
		t.Fatalf("capture face: %v", err)
	}
	if _, err := m.Confirm(ctx); err != nil {
		t.Fatalf("confirm face: %v", err)
	}
	awaitCamera(t, m)
	s, err := m.Capture(ctx)
	if err != nil {
		t.Fatalf("capture id: %v", err)
	}
	if s.Phase != kyc.PhaseIDConfirm {
		t.Fatalf("expected id_confirm, got %s", s.Phase)
	}
	return s
}

func TestPermissionDeniedBlocksWorkflow(t *testing.T) {
	verifier := &stubVerifier{}
	m, device := newTestMachine(t, verifier)
	device.FailOpen(errors.New("NotAllowedError"))

	s, err := m.Start(context.Background())
	var permErr *kyc.PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if s.Permission != PermissionDenied {
		t.Fatalf("expected denied permission, got %s", s.Permission)
	}
	if s.LastError == nil || s.LastError.Kind != kyc.KindPermission {
		t.Fatalf("expected permission failure, got %+v", s.LastError)
	}

	if _, err := m.Capture(context.Background()); !errors.As(err, &permErr) {
		t.Fatalf("expected capture to be refused, got %v", err)
	}
	if _, err := m.Submit(context.Background()); !errors.As(err, &permErr) {
		t.Fatalf("expected submit to be refused, got %v", err)
	}

	_, nav, err := m.Back(context.Background())
	if err != nil || nav != NavigateExit {
		t.Fatalf("expected exit navigation, got %v %v", nav, err)
	}
	if verifier.callCount() != 0 {
		t.Fatalf("expected no verification calls, got %d", verifier.callCount())
	}
}

func TestMetadataFailureDeniesPermission(t *testing.T) {
	m, device := newTestMachine(t, &stubVerifier{})
	device.FailMetadata(errors.New("NotReadableError"))

	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("expected stream to be granted, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := m.AwaitCamera(ctx)
	var permErr *kyc.PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if s.Permission != PermissionDenied {
		t.Fatalf("expected denied permission, got %s", s.Permission)
	}
	if device.Live() != 0 {
		t.Fatalf("expected failed stream to be stopped, %d live", device.Live())
	}
}

func TestHappyPathReachesSuccess(t *testing.T) {
	verifier := &stubVerifier{result: &kyc.VerificationResult{Similarity: true}}
	store := handoff.NewMemoryStore(time.Minute)
	m, device := newTestMachine(t, verifier, WithHandoff(store), WithSubjectName("string"))

	s := driveToIDConfirm(t, m)
	if _, err := store.Get(context.Background(), s.ID); err != nil {
		t.Fatalf("expected face image in handoff store, got %v", err)
	}

	s, err := m.Confirm(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.Phase != kyc.PhaseSuccess {
		t.Fatalf("expected success, got %s", s.Phase)
	}
	if s.Submitting || s.LastError != nil {
		t.Fatalf("unexpected session state %+v", s)
	}
	if verifier.callCount() != 1 {
		t.Fatalf("expected one verification call, got %d", verifier.callCount())
	}

	req := verifier.requests[0]
	if req.Name != "string" {
		t.Fatalf("unexpected subject name %q", req.Name)
	}
	if req.Source.MIMEType != imagecodec.MIMEType || !bytes.HasPrefix(req.Source.Bytes, []byte("\x89PNG")) {
		t.Fatal("expected source image as PNG bytes")
	}
	if !bytes.HasPrefix(req.Target.Bytes, []byte("\x89PNG")) {
		t.Fatal("expected target image as PNG bytes")
	}

	if _, err := store.Get(context.Background(), s.ID); !errors.Is(err, handoff.ErrNotFound) {
		t.Fatalf("expected handoff entry to be consumed, got %v", err)
	}
	if device.Live() != 0 {
		t.Fatalf("expected camera released, %d streams live", device.Live())
	}
}

func TestMismatchReachesFailureWithoutError(t *testing.T) {
	m, _ := newTestMachine(t, &stubVerifier{result: &kyc.VerificationResult{Similarity: false}})
	driveToIDConfirm(t, m)

	s, err := m.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.Phase != kyc.PhaseFailure {
		t.Fatalf("expected failure, got %s", s.Phase)
	}
	if s.LastError != nil {
		t.Fatalf("expected no error for a negative verdict, got %+v", s.LastError)
	}
	if s.Verdict == nil || s.Verdict.Similarity {
		t.Fatalf("expected negative verdict, got %+v", s.Verdict)
	}
}

func TestVerificationErrorsReachFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    kyc.ErrorKind
		message string
	}{
		{
			name:    "server",
			err:     &kyc.ServerError{Status: 500, Message: "Face not detected"},
			kind:    kyc.KindServer,
			message: "Face not detected",
		},
		{
			name:    "network",
			err:     &kyc.NetworkError{Err: errors.New("connection refused")},
			kind:    kyc.KindNetwork,
			message: kyc.MessageNetwork,
		},
		{
			name:    "protocol",
			err:     &kyc.ProtocolError{Reason: kyc.ReasonInvalidResponseShape, Status: 200},
			kind:    kyc.KindProtocol,
			message: kyc.MessageProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMachine(t, &stubVerifier{err: tt.err})
			driveToIDConfirm(t, m)

			s, err := m.Submit(context.Background())
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if s.Phase != kyc.PhaseFailure {
				t.Fatalf("expected failure, got %s", s.Phase)
			}
			if s.LastError == nil || s.LastError.Kind != tt.kind || s.LastError.Message != tt.message {
				t.Fatalf("unexpected failure %+v", s.LastError)
			}
		})
	}
}

func TestRetakeOnIDConfirmKeepsFace(t *testing.T) {
	m, device := newTestMachine(t, &stubVerifier{})
	before := driveToIDConfirm(t, m)

	s, err := m.Retake(context.Background())
	if err != nil {
		t.Fatalf("retake: %v", err)
	}
	if s.Phase != kyc.PhaseIDCapture {
		t.Fatalf("expected id_capture, got %s", s.Phase)
	}
	if !s.IDImage.IsZero() {
		t.Fatal("expected id slot to be cleared")
	}
	if !bytes.Equal(s.FaceImage.Encoded(), before.FaceImage.Encoded()) {
		t.Fatal("expected face image to be retained")
	}
	if device.Live() != 1 {
		t.Fatalf("expected exactly one live stream, got %d", device.Live())
	}
}

func TestSubmitIsGuardedWhileInFlight(t *testing.T) {
	verifier := &stubVerifier{
		result:  &kyc.VerificationResult{Similarity: true},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	m, _ := newTestMachine(t, verifier)
	driveToIDConfirm(t, m)

	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background())
		done <- err
	}()
	<-verifier.entered

	s := m.Snapshot()
	if !s.Submitting || s.Phase != kyc.PhaseSubmitting {
		t.Fatalf("expected submitting state, got %+v", s)
	}
	if _, err := m.Submit(context.Background()); !errors.Is(err, ErrSubmissionPending) {
		t.Fatalf("expected ErrSubmissionPending, got %v", err)
	}
	if _, _, err := m.Back(context.Background()); !errors.Is(err, ErrSubmissionPending) {
		t.Fatalf("expected back to be refused, got %v", err)
	}

	close(verifier.release)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	if verifier.callCount() != 1 {
		t.Fatalf("expected a single verification call, got %d", verifier.callCount())
	}
}

func TestSubmitRequiresBothImages(t *testing.T) {
	verifier := &stubVerifier{}
	m, _ := newTestMachine(t, verifier)

	m.mu.Lock()
	m.session = &Session{ID: "partial", Phase: kyc.PhaseIDConfirm, Permission: PermissionGranted}
	m.session.IDImage = kyc.NewCapturedImage([]byte("data:image/png;base64,AAAA"), "image/png", 1, 1)
	m.mu.Unlock()

	s, err := m.Submit(context.Background())
	if !errors.Is(err, kyc.ErrImagesRequired) {
		t.Fatalf("expected ErrImagesRequired, got %v", err)
	}
	if s.Phase != kyc.PhaseIDConfirm {
		t.Fatalf("expected phase unchanged, got %s", s.Phase)
	}
	if s.LastError == nil || s.LastError.Kind != kyc.KindIncomplete {
		t.Fatalf("expected incomplete failure, got %+v", s.LastError)
	}
	if verifier.callCount() != 0 {
		t.Fatalf("expected no network call, got %d", verifier.callCount())
	}
}

func TestCaptureBeforeReadyLeavesSessionUntouched(t *testing.T) {
	m, device := newTestMachine(t, &stubVerifier{})
	releaseHold := device.HoldMetadata()
	defer releaseHold()

	before, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	after, err := m.Capture(context.Background())
	var captureErr *kyc.CaptureError
	if !errors.As(err, &captureErr) || captureErr.Reason != kyc.ReasonNotReady {
		t.Fatalf("expected not-ready capture error, got %v", err)
	}
	if after.Phase != before.Phase || !after.FaceImage.IsZero() || after.LastError != nil || after.CameraReady {
		t.Fatalf("expected session unchanged, got %+v", after)
	}

	releaseHold()
	awaitCamera(t, m)
	if s, err := m.Capture(context.Background()); err != nil || s.Phase != kyc.PhaseFaceConfirm {
		t.Fatalf("expected capture after readiness, got %v %v", s.Phase, err)
	}
}

func TestBackNavigation(t *testing.T) {
	m, device := newTestMachine(t, &stubVerifier{})
	ctx := context.Background()

	if _, err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitCamera(t, m)
	if _, err := m.Capture(ctx); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if _, err := m.Confirm(ctx); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	s, nav, err := m.Back(ctx)
	if err != nil || nav != NavigateNone {
		t.Fatalf("unexpected back result %v %v", nav, err)
	}
	if s.Phase != kyc.PhaseFaceConfirm || s.FaceImage.IsZero() {
		t.Fatalf("expected face confirm with image, got %s", s.Phase)
	}
	if device.Live() != 0 {
		t.Fatalf("expected camera released, %d live", device.Live())
	}

	s, nav, err = m.Back(ctx)
	if err != nil || nav != NavigateNone || s.Phase != kyc.PhaseFaceCapture || !s.FaceImage.IsZero() {
		t.Fatalf("expected back from confirm to retake, got %s %v %v", s.Phase, nav, err)
	}

	_, nav, err = m.Back(ctx)
	if err != nil || nav != NavigateExit {
		t.Fatalf("expected exit from first phase, got %v %v", nav, err)
	}
	if m.Active() {
		t.Fatal("expected session to be discarded")
	}
	if device.Live() != 0 {
		t.Fatalf("expected camera released on exit, %d live", device.Live())
	}
}

func TestResumeFromHandoff(t *testing.T) {
	store := handoff.NewMemoryStore(time.Minute)
	face := kyc.NewCapturedImage([]byte("data:image/png;base64,AAAA"), "image/png", 2, 2)
	if err := store.Put(context.Background(), "session-7", handoff.Entry{Image: face}); err != nil {
		t.Fatalf("put: %v", err)
	}
	m, _ := newTestMachine(t, &stubVerifier{}, WithHandoff(store))

	s, err := m.Resume(context.Background(), "session-7")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if s.ID != "session-7" || s.Phase != kyc.PhaseIDCapture {
		t.Fatalf("unexpected session %s in %s", s.ID, s.Phase)
	}
	if !bytes.Equal(s.FaceImage.Encoded(), face.Encoded()) {
		t.Fatal("expected stored face image")
	}
}

func TestResumeWithoutFaceRedirects(t *testing.T) {
	m, _ := newTestMachine(t, &stubVerifier{}, WithHandoff(handoff.NewMemoryStore(time.Minute)))

	s, err := m.Resume(context.Background(), "unknown")
	if !errors.Is(err, ErrMissingPrerequisite) {
		t.Fatalf("expected ErrMissingPrerequisite, got %v", err)
	}
	if s.Phase != kyc.PhaseFaceCapture {
		t.Fatalf("expected redirect to face capture, got %s", s.Phase)
	}
	if s.LastError == nil || s.LastError.Message != MessageMissingFace {
		t.Fatalf("unexpected failure %+v", s.LastError)
	}
}

func confirmFace(t *testing.T, ctx context.Context, m *Machine) Session {
	t.Helper()
	if _, err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitCamera(t, m)
	if _, err := m.Capture(ctx); err != nil {
		t.Fatalf("capture face: %v", err)
	}
	s, err := m.Confirm(ctx)
	if err != nil {
		t.Fatalf("confirm face: %v", err)
	}
	return s
}

func TestRetakeAfterBackDiscardsStoredFace(t *testing.T) {
	store := handoff.NewMemoryStore(time.Minute)
	m, _ := newTestMachine(t, &stubVerifier{}, WithHandoff(store))
	ctx := context.Background()

	s := confirmFace(t, ctx, m)
	if _, err := store.Get(ctx, s.ID); err != nil {
		t.Fatalf("expected stored face after confirm: %v", err)
	}
	if s, _, err := m.Back(ctx); err != nil || s.Phase != kyc.PhaseFaceConfirm {
		t.Fatalf("expected face confirm, got %s %v", s.Phase, err)
	}
	if _, err := m.Retake(ctx); err != nil {
		t.Fatalf("retake: %v", err)
	}
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, handoff.ErrNotFound) {
		t.Fatalf("expected stored face removed on retake, got %v", err)
	}
	if err := m.Exit(ctx); err != nil {
		t.Fatalf("exit: %v", err)
	}

	resumed, err := m.Resume(ctx, s.ID)
	if !errors.Is(err, ErrMissingPrerequisite) {
		t.Fatalf("expected ErrMissingPrerequisite, got %v", err)
	}
	if resumed.Phase != kyc.PhaseFaceCapture || !resumed.FaceImage.IsZero() {
		t.Fatalf("expected face capture without image, got %s", resumed.Phase)
	}
}

func TestExitDiscardsStoredFace(t *testing.T) {
	store := handoff.NewMemoryStore(time.Minute)
	m, _ := newTestMachine(t, &stubVerifier{}, WithHandoff(store))
	ctx := context.Background()

	s := confirmFace(t, ctx, m)
	if err := m.Exit(ctx); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, handoff.ErrNotFound) {
		t.Fatalf("expected stored face removed on exit, got %v", err)
	}
}

func TestCloseKeepsStoredFace(t *testing.T) {
	store := handoff.NewMemoryStore(time.Minute)
	m, _ := newTestMachine(t, &stubVerifier{}, WithHandoff(store))
	ctx := context.Background()

	s := confirmFace(t, ctx, m)
	m.Close()
	if m.Active() {
		t.Fatal("expected no session after close")
	}

	resumed, err := m.Resume(ctx, s.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Phase != kyc.PhaseIDCapture || resumed.FaceImage.IsZero() {
		t.Fatalf("expected id capture with face, got %s", resumed.Phase)
	}
}

func TestOtherOperatorIsRefused(t *testing.T) {
	store := handoff.NewMemoryStore(time.Minute)
	m, device := newTestMachine(t, &stubVerifier{}, WithHandoff(store))
	owner := auth.WithOperator(context.Background(), "kiosk-1")
	other := auth.WithOperator(context.Background(), "kiosk-2")

	s := confirmFace(t, owner, m)
	if s.Operator != "kiosk-1" {
		t.Fatalf("expected session owned by kiosk-1, got %q", s.Operator)
	}

	if got, err := m.Capture(other); !errors.Is(err, ErrNotOwner) || got.ID != "" {
		t.Fatalf("expected capture refused without session data, got %q %v", got.ID, err)
	}
	if _, err := m.Confirm(other); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected confirm refused, got %v", err)
	}
	if _, err := m.Retake(other); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected retake refused, got %v", err)
	}
	if _, err := m.Submit(other); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected submit refused, got %v", err)
	}
	if _, err := m.TryAgain(other); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected try again refused, got %v", err)
	}
	if _, nav, err := m.Back(other); !errors.Is(err, ErrNotOwner) || nav != NavigateNone {
		t.Fatalf("expected back refused, got %v %v", nav, err)
	}
	if err := m.Exit(other); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected exit refused, got %v", err)
	}
	if _, err := m.Resume(other, s.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected resume refused, got %v", err)
	}

	if got := m.Snapshot(); got.ID != s.ID || got.Phase != kyc.PhaseIDCapture {
		t.Fatalf("expected owner's session untouched, got %s in %s", got.ID, got.Phase)
	}
	if device.Live() != 1 {
		t.Fatalf("expected owner's camera kept, %d live", device.Live())
	}
	if _, err := store.Get(owner, s.ID); err != nil {
		t.Fatalf("expected stored face kept: %v", err)
	}

	awaitCamera(t, m)
	if got, err := m.Capture(owner); err != nil || got.Phase != kyc.PhaseIDConfirm {
		t.Fatalf("expected owner capture to succeed, got %s %v", got.Phase, err)
	}
}

func TestResumeRefusesOtherOperatorsFace(t *testing.T) {
	store := handoff.NewMemoryStore(time.Minute)
	face := kyc.NewCapturedImage([]byte("data:image/png;base64,AAAA"), "image/png", 2, 2)
	if err := store.Put(context.Background(), "session-9", handoff.Entry{Image: face, Operator: "kiosk-1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	m, _ := newTestMachine(t, &stubVerifier{}, WithHandoff(store))

	if _, err := m.Resume(auth.WithOperator(context.Background(), "kiosk-2"), "session-9"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if m.Active() {
		t.Fatal("expected no session after refused resume")
	}

	s, err := m.Resume(auth.WithOperator(context.Background(), "kiosk-1"), "session-9")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if s.Operator != "kiosk-1" || s.Phase != kyc.PhaseIDCapture {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestCompletionAfterExitIsDropped(t *testing.T) {
	verifier := &stubVerifier{
		result:  &kyc.VerificationResult{Similarity: true},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	m, _ := newTestMachine(t, verifier)
	driveToIDConfirm(t, m)

	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background())
		done <- err
	}()
	<-verifier.entered

	if err := m.Exit(context.Background()); err != nil {
		t.Fatalf("exit: %v", err)
	}
	close(verifier.release)

	if err := <-done; !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if m.Active() {
		t.Fatal("expected no session after exit")
	}
}

func TestTryAgainClearsSlots(t *testing.T) {
	m, _ := newTestMachine(t, &stubVerifier{result: &kyc.VerificationResult{Similarity: false}})
	driveToIDConfirm(t, m)
	if _, err := m.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	s, err := m.TryAgain(context.Background())
	if err != nil {
		t.Fatalf("try again: %v", err)
	}
	if s.Phase != kyc.PhaseFaceCapture || !s.FaceImage.IsZero() || !s.IDImage.IsZero() || s.Verdict != nil {
		t.Fatalf("expected a fresh attempt, got %+v", s)
	}
}

func TestOperationsRequireSession(t *testing.T) {
	m, _ := newTestMachine(t, &stubVerifier{})

	if _, err := m.Capture(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := m.AwaitCamera(context.Background()); !errors.Is(err, ErrNoCamera) {
		t.Fatalf("expected ErrNoCamera, got %v", err)
	}
}

func TestMetricsSummary(t *testing.T) {
	verifier := &stubVerifier{result: &kyc.VerificationResult{Similarity: true}}
	m, _ := newTestMachine(t, verifier)

	driveToIDConfirm(t, m)
	if _, err := m.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	verifier.result = nil
	verifier.err = &kyc.NetworkError{Err: errors.New("offline")}
	driveToIDConfirm(t, m)
	_, _ = m.Submit(context.Background())

	summary := m.Metrics()
	if summary.TotalSubmissions != 2 || summary.Matches != 1 || summary.Failures != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.FailuresByKind["network"] != 1 {
		t.Fatalf("expected network failure count, got %+v", summary.FailuresByKind)
	}
	if summary.MatchRate != 0.5 {
		t.Fatalf("expected match rate 0.5, got %v", summary.MatchRate)
	}
}
