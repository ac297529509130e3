package object

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Sniff reads up to 512 bytes from r and resolves the content type. The returned
// prefix must be written before the remainder of r.
func Sniff(r io.Reader, declared string) ([]byte, string, error) {
	var buf [512]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, "", fmt.Errorf("read sniff: %w", err)
	}
	mimeType := strings.TrimSpace(declared)
	if mimeType == "" {
		mimeType = http.DetectContentType(buf[:n])
	}
	return buf[:n], mimeType, nil
}
