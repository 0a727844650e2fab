package ticket

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

const (
	TokenBytes = 24

	DefaultQRBaseURL = "https://api.qrserver.com/v1/create-qr-code/"
	DefaultQRSize    = 200
)

// NewToken returns an unguessable ticket token; it is the QR payload
// scanned at check-in.
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate ticket token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// QRCodeURL builds the image URL of a scannable code carrying token.
func QRCodeURL(baseURL, token string, size int) string {
	if baseURL == "" {
		baseURL = DefaultQRBaseURL
	}
	if size <= 0 {
		size = DefaultQRSize
	}

	q := url.Values{}
	q.Set("size", fmt.Sprintf("%dx%d", size, size))
	q.Set("data", token)

	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + q.Encode()
}
