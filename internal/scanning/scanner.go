package scanning

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
)

// Error classes surfaced by providers. Implementations wrap these so callers
// can classify failures with errors.Is.
var (
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrProtocolMismatch     = errors.New("protocol mismatch")
	ErrTransport            = errors.New("transport failure")
	ErrUpstreamProtocol     = errors.New("upstream protocol error")
)

// Image is an encoded image ready to be sent to a provider
type Image struct {
	Data     []byte
	MIMEType string
}

// Base64 returns the standard base64 encoding of the image bytes
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as a data: URL, assuming JPEG when no MIME type is known
func (i Image) DataURL() string {
	mimeType := i.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, i.Base64())
}

// Format returns the short format name (e.g. "jpeg") of the image
func (i Image) Format() string {
	switch i.MIMEType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/heic":
		return "heic"
	default:
		return "jpeg"
	}
}

// Provider is a backend that can be asked to read an image
type Provider interface {
	// Name identifies the provider in logs, traces and result messages
	Name() string
	// Vision reports whether the provider accepts image input
	Vision() bool
	// Invoke sends the prompt and the image and returns the model's raw text reply
	Invoke(ctx context.Context, img Image, prompt string) (string, error)
	// Close releases resources held by the provider
	Close() error
}
