// Package qr renders the emergency lookup QR code printed on donor cards.
package qr

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels
const DefaultSize = 256

// DonorURL is the address a scanned code opens
func DonorURL(baseURL string, donorID int64) string {
	return fmt.Sprintf("%s/qr/%d", strings.TrimRight(baseURL, "/"), donorID)
}

// Encode renders content as a PNG QR code. A non-positive size uses DefaultSize.
func Encode(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("QR content is required")
	}
	if size <= 0 {
		size = DefaultSize
	}

	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}
