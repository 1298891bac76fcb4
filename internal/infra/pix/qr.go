package pix

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 512

// RenderQR encodes a payment code as a PNG image.
func RenderQR(code string) ([]byte, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("render pix qr: %w", err)
	}
	return png, nil
}
