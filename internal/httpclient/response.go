package httpclient

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/k3a/html2text"
)

// maxErrorBody bounds how much of an error response is kept
const maxErrorBody = 4 * 1024

// StatusError reports a non-2xx response
type StatusError struct {
	StatusCode int
	Status     string
	Body       string // plain text excerpt of the response body
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected response status %s", e.Status)
	}
	return fmt.Sprintf("unexpected response status %s: %s", e.Status, e.Body)
}

// CheckStatus returns nil for 2xx responses and a *StatusError otherwise.
// Gateways often answer errors with HTML pages; those are reduced to text.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	body := string(raw)

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/html" || strings.HasPrefix(strings.TrimSpace(body), "<") {
		body = html2text.HTML2Text(body)
	}
	body = strings.Join(strings.Fields(body), " ")

	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       body,
	}
}

// DownloadToFile streams a successful response body to dst, replacing it atomically.
// At most maxBytes are accepted when maxBytes > 0.
func DownloadToFile(resp *http.Response, dst string, maxBytes int64) (int64, error) {
	if err := CheckStatus(resp); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var src io.Reader = resp.Body
	if maxBytes > 0 {
		src = io.LimitReader(resp.Body, maxBytes+1)
	}

	n, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if maxBytes > 0 && n > maxBytes {
		return 0, fmt.Errorf("response exceeds %d bytes", maxBytes)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return 0, fmt.Errorf("failed to move download into place: %w", err)
	}
	return n, nil
}
