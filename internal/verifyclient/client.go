package verifyclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ekyc-capture/internal/kyc"
	"github.com/example/ekyc-capture/internal/logging"
)

// VerifyPath is the verification endpoint relative to the base URL.
const VerifyPath = "/pocs/verify"

const (
	fieldName        = "name"
	fieldSource      = "sourceImage"
	fieldTarget      = "targetImage"
	maxResponseBytes = 1 << 20
)

// Client submits image pairs to the verification service. It makes exactly
// one attempt per call.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient returns a client for the service rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	endpoint, err := url.JoinPath(baseURL, VerifyPath)
	if err != nil {
		wrapped := logging.NewOperationError("verifyclient.new", "", err)
		logger.Error("invalid verification base url", zap.Error(wrapped), zap.String("base_url", baseURL))
		return nil, wrapped
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	return &Client{endpoint: endpoint, http: httpClient, logger: logger.Named("verifyclient")}, nil
}

// NewHTTPClient builds a transport with connect timeouts. A zero timeout
// leaves the overall request unbounded.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

// Verify posts the pair and classifies the response.
func (c *Client) Verify(ctx context.Context, req kyc.VerificationRequest) (*kyc.VerificationResult, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(c.logger, "verifyclient.verify", "").With(zap.String("request_id", requestID))

	body, contentType, err := buildMultipart(req)
	if err != nil {
		opLogger.Error("failed to build multipart body", zap.Error(err))
		return nil, &kyc.UnknownError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		opLogger.Error("failed to build request", zap.Error(err))
		return nil, &kyc.UnknownError{Err: err}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		classified := classifyTransportError(err)
		opLogger.Error("verification request failed", zap.Error(classified))
		return nil, classified
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		opLogger.Error("failed to read verification response", zap.Error(err), zap.Int("status", resp.StatusCode))
		return nil, &kyc.UnknownError{Err: err}
	}

	opLogger = opLogger.With(zap.Int("status", resp.StatusCode), zap.Duration("latency", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serverErr := &kyc.ServerError{Status: resp.StatusCode, Message: errorMessage(raw, resp.StatusCode)}
		opLogger.Warn("verification service returned error", zap.String("message", serverErr.Message))
		return nil, serverErr
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		opLogger.Warn("verification response is not json", zap.Error(err))
		return nil, &kyc.ProtocolError{Reason: kyc.ReasonInvalidResponseShape, Status: resp.StatusCode}
	}
	similarity, ok := decoded["similarity"].(bool)
	if !ok {
		opLogger.Warn("verification response lacks boolean similarity")
		return nil, &kyc.ProtocolError{Reason: kyc.ReasonInvalidResponseShape, Status: resp.StatusCode}
	}

	opLogger.Info("verification completed", zap.Bool("similarity", similarity))
	return &kyc.VerificationResult{Similarity: similarity}, nil
}

func buildMultipart(req kyc.VerificationRequest) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField(fieldName, req.Name); err != nil {
		return nil, "", fmt.Errorf("write %s: %w", fieldName, err)
	}
	if err := writeFile(writer, fieldSource, req.Source); err != nil {
		return nil, "", err
	}
	if err := writeFile(writer, fieldTarget, req.Target); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

func writeFile(writer *multipart.Writer, field string, payload kyc.Payload) error {
	ext := ".png"
	if known := mimetype.Lookup(payload.MIMEType); known != nil && known.Extension() != "" {
		ext = known.Extension()
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, field+ext))
	header.Set("Content-Type", payload.MIMEType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := part.Write(payload.Bytes); err != nil {
		return fmt.Errorf("write %s part: %w", field, err)
	}
	return nil
}

func errorMessage(raw []byte, status int) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return fmt.Sprintf("request failed: %d", status)
}

// classifyTransportError separates "no response received" from failures that
// happened before the request could be sent. Failed TLS handshakes count as
// no response.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return &kyc.UnknownError{Err: err}
	}

	inner := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		inner = urlErr.Err
	}

	if isNoResponse(inner) || isHandshakeFailure(inner) {
		return &kyc.NetworkError{Err: err}
	}
	return &kyc.UnknownError{Err: err}
}

func isNoResponse(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, context.DeadlineExceeded)
}

func isHandshakeFailure(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		recordErr    tls.RecordHeaderError
		alertErr     tls.AlertError
		authorityErr x509.UnknownAuthorityError
		hostErr      x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}
