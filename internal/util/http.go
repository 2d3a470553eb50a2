package util

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"path"
	"time"
)

// DownloadFile executes a pre-built HTTP request and returns the body bytes
// and response headers. Non-200 statuses are errors.
// The caller is responsible for creating the request (including context and headers).
func DownloadFile(client *http.Client, req *http.Request) ([]byte, http.Header, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("http do request for %s: %w", req.URL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read some of the body for context on error
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, nil, fmt.Errorf("bad status '%s' fetching %s: %s", resp.Status, req.URL.String(), string(bodyBytes))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed reading body from %s: %w", req.URL.String(), err)
	}
	return bodyBytes, resp.Header, nil
}

// SessionHTTPClient returns a client that keeps cookies across requests.
func SessionHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout, Jar: jar}, nil
}

// AttachmentName returns the filename announced by Content-Disposition, or
// the last path segment of fallbackPath.
func AttachmentName(header http.Header, fallbackPath string) string {
	if cd := header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := path.Base(params["filename"]); name != "." && name != "/" && name != "" {
				return name
			}
		}
	}
	name := path.Base(fallbackPath)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
