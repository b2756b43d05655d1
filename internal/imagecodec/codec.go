// Package imagecodec turns raw camera frames into portable data URLs and back
// into upload-ready bytes.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/example/ekyc-capture/internal/camera"
	"github.com/example/ekyc-capture/internal/kyc"
)

// MIMEType is the only format Encode produces.
const MIMEType = "image/png"

const (
	dataScheme   = "data:"
	base64Marker = ";base64"
)

// Codec encodes frames as PNG data URLs.
type Codec struct {
	encoder png.Encoder
}

// New returns a codec with a fixed compression level so output is deterministic.
func New() *Codec {
	return &Codec{encoder: png.Encoder{CompressionLevel: png.DefaultCompression}}
}

// Encode serialises the frame losslessly.
func (c *Codec) Encode(frame camera.Frame) (kyc.CapturedImage, error) {
	if frame.Image == nil || frame.Width() == 0 || frame.Height() == 0 {
		return kyc.CapturedImage{}, &kyc.EncodingError{Reason: kyc.ReasonEmptyFrame}
	}

	var raw bytes.Buffer
	if err := c.encoder.Encode(&raw, frame.Image); err != nil {
		return kyc.CapturedImage{}, &kyc.EncodingError{Reason: kyc.ReasonMalformed, Detail: "png encode", Err: err}
	}

	header := dataScheme + MIMEType + base64Marker + ","
	encoded := make([]byte, len(header)+base64.StdEncoding.EncodedLen(raw.Len()))
	copy(encoded, header)
	base64.StdEncoding.Encode(encoded[len(header):], raw.Bytes())

	return kyc.NewCapturedImage(encoded, MIMEType, frame.Width(), frame.Height()), nil
}

// Decode reverses Encode. Buffers without a data URL marker, a MIME token, a
// payload separator or a payload whose content matches the declared MIME are
// rejected as malformed.
func (c *Codec) Decode(img kyc.CapturedImage) (kyc.Payload, error) {
	return DecodeDataURL(img.Encoded())
}

// DecodeDataURL parses a base64 data URL.
func DecodeDataURL(dataURL []byte) (kyc.Payload, error) {
	header, body, ok := bytes.Cut(dataURL, []byte(","))
	if !ok {
		return kyc.Payload{}, malformed("missing payload separator")
	}

	meta, found := strings.CutPrefix(string(header), dataScheme)
	if !found {
		return kyc.Payload{}, malformed("missing data marker")
	}
	mime, found := strings.CutSuffix(meta, base64Marker)
	if !found {
		return kyc.Payload{}, malformed("missing base64 marker")
	}
	if mime == "" || strings.ContainsAny(mime, ";,") || !strings.Contains(mime, "/") {
		return kyc.Payload{}, malformed("missing mime type")
	}
	if len(body) == 0 {
		return kyc.Payload{}, malformed("empty payload")
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(body)))
	n, err := base64.StdEncoding.Decode(decoded, body)
	if err != nil {
		return kyc.Payload{}, &kyc.EncodingError{Reason: kyc.ReasonMalformed, Detail: "invalid base64", Err: err}
	}
	decoded = decoded[:n]

	if detected := mimetype.Detect(decoded); !detected.Is(mime) {
		return kyc.Payload{}, malformed("content is " + detected.String() + ", declared " + mime)
	}

	return kyc.Payload{Bytes: decoded, MIMEType: mime}, nil
}

func malformed(detail string) error {
	return &kyc.EncodingError{Reason: kyc.ReasonMalformed, Detail: detail}
}
