package media

import (
	"image/color"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/kickspeed/kickspeed/internal/errors"
)

// DefaultQRSize is the QR image edge length in pixels
const DefaultQRSize = 512

// WriteQR renders content as a black on white PNG QR code
func WriteQR(content, outPath string, size int) error {
	if content == "" {
		return errors.ValidationError("QR content is empty")
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	if err := qrcode.WriteColorFile(content, qrcode.Medium, size, color.White, color.Black, outPath); err != nil {
		return errors.New(err).
			Component("media").
			Category(errors.CategoryMedia).
			Context("operation", "write_qr").
			Context("path", outPath).
			Build()
	}
	return nil
}
