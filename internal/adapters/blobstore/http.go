// Package blobstore uploads audio files to the remote object host over
// plain HTTP. The host is expected to accept PUT at the upload path and
// serve the same path back with GET.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cutiefunny/musclecat/internal/ports"
)

// HTTPStore talks to an HTTP object host.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

var _ ports.BlobStore = (*HTTPStore)(nil)

// NewHTTPStore creates a store rooted at baseURL.
func NewHTTPStore(baseURL string) (*HTTPStore, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("blob base url required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, err
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Upload stores the file under an upload-time-generated path and returns
// the download URL.
func (s *HTTPStore) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	target := fmt.Sprintf("%s/music/%d_%s", s.baseURL, time.Now().UnixMilli(), url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, r)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upload failed: status %d", resp.StatusCode)
	}
	return target, nil
}

// Delete removes an uploaded file by its URL.
func (s *HTTPStore) Delete(ctx context.Context, fileURL string) error {
	if !strings.HasPrefix(fileURL, s.baseURL) {
		return fmt.Errorf("url %q not under blob store", fileURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fileURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delete failed: status %d", resp.StatusCode)
	}
	return nil
}
