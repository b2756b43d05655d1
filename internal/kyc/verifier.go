package kyc

import "context"

// Verifier exposes the remote similarity check used by the capture workflow.
type Verifier interface {
	Verify(ctx context.Context, req VerificationRequest) (*VerificationResult, error)
}
