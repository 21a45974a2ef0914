package waclient

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"

	"zapfilter/internal/core/envelope"
)

// handleQRCode renders a fresh pairing code in the terminal and emits
// it for the admin API. whatsmeow rotates codes every few seconds and
// sometimes repeats one; repeats are dropped.
func (c *Client) handleQRCode(code string) {
	c.mu.Lock()
	if code == c.lastQR {
		c.mu.Unlock()
		return
	}
	c.lastQR = code
	c.mu.Unlock()

	c.displayQRInTerminal(code)

	payload := envelope.QRData{QRCode: code}
	if image, err := qrImageDataURI(code); err == nil {
		payload.Base64 = image
	} else {
		c.logger.WarnWithFields("Failed to render QR image", map[string]interface{}{
			"error": err.Error(),
		})
	}
	c.emitEvent(envelope.QRCodeUpdated, payload)
}

// qrImageDataURI renders the pairing code as an inline PNG for clients
// that cannot reach the terminal.
func qrImageDataURI(code string) (string, error) {
	pngBytes, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes), nil
}

func (c *Client) displayQRInTerminal(code string) {
	fmt.Println()
	fmt.Println("Scan the QR code below with WhatsApp:")
	fmt.Println("  Settings > Linked Devices > Link a Device")
	fmt.Println()

	qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)

	fmt.Println()

	c.logger.InfoWithFields("QR code displayed in terminal", map[string]interface{}{
		"qr_length": len(code),
	})
}
