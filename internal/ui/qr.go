package ui

import (
	"fmt"
	"io"

	qrcode "github.com/skip2/go-qrcode"
)

// QRString renders url as a QR code built from half-block characters, small
// enough to scan from a phone held up to the terminal.
func QRString(url string) (string, error) {
	q, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return q.ToSmallString(false), nil
}

// PrintQR writes the QRString rendering of url to w.
func PrintQR(w io.Writer, url string) error {
	qr, err := QRString(url)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, qr)
	return err
}
