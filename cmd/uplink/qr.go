package main

import (
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"
)

// DisplayConnectQR renders the connect URL as a terminal QR code with a
// plain-text fallback. The API key is deliberately not embedded in the
// payload; it travels out of band.
func DisplayConnectQR(w io.Writer, connectURL string) {
	qr, err := qrcode.New(connectURL, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		fmt.Fprintf(w, "Connect URL: %s\n", connectURL)
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         SCAN TO CONNECT")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")

	// Half-block rendering keeps the code small enough for a terminal.
	fmt.Fprint(w, qr.ToSmallString(false))

	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintf(w, "  URL: %s\n", connectURL)
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}
