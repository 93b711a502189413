package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bdobrica/Lugha/common/version"
	"github.com/bdobrica/Lugha/internal/lugha/failure"
)

// FSBlobStore copies recordings into a directory that is served under
// PublicBaseURL (see Handler).
type FSBlobStore struct {
	Dir           string
	PublicBaseURL string
}

// Put implements BlobStore.
func (s *FSBlobStore) Put(ctx context.Context, key, src, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" || strings.HasPrefix(clean, "..") {
		return "", failure.Terminal("blob.put", fmt.Errorf("invalid key %q", key), "")
	}
	dst := filepath.Join(s.Dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", failure.Terminal("blob.put", err, "")
	}

	in, err := os.Open(src)
	if err != nil {
		return "", failure.Terminal("blob.put", err, "")
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", failure.Terminal("blob.put", err, "")
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", failure.Transient("blob.put", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", failure.Transient("blob.put", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", failure.Terminal("blob.put", err, "")
	}
	return strings.TrimRight(s.PublicBaseURL, "/") + "/" + clean, nil
}

// Handler serves stored blobs read-only. Directories and dot-files
// (in-flight uploads) answer 404, so keys cannot be enumerated.
func (s *FSBlobStore) Handler() http.Handler {
	return http.FileServer(filesOnly{http.Dir(s.Dir)})
}

type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") {
			return nil, os.ErrNotExist
		}
	}
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if st.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

// HTTPBlobStore uploads recordings with PUT {UploadURL}/{key}. The service
// may answer with {"url": ...}; otherwise the object is assumed to be
// readable at {PublicBaseURL or UploadURL}/{key}.
type HTTPBlobStore struct {
	UploadURL     string
	PublicBaseURL string
	Token         string
	Client        *http.Client
}

type blobResponse struct {
	URL string `json:"url"`
}

// Put implements BlobStore.
func (s *HTTPBlobStore) Put(ctx context.Context, key, src, mimeType string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", failure.Terminal("blob.put", err, "")
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", failure.Terminal("blob.put", err, "")
	}

	target := strings.TrimRight(s.UploadURL, "/") + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, f)
	if err != nil {
		return "", failure.Terminal("blob.put", err, "")
	}
	req.ContentLength = st.Size()
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("User-Agent", version.UserAgent())
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", failure.Transient("blob.put", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", failure.Transient("blob.put", fmt.Errorf("HTTP %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return "", failure.Terminal("blob.put", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), "")
	}

	var out blobResponse
	if len(body) > 0 && json.Unmarshal(body, &out) == nil && out.URL != "" {
		return out.URL, nil
	}
	if s.PublicBaseURL != "" {
		return strings.TrimRight(s.PublicBaseURL, "/") + "/" + key, nil
	}
	return target, nil
}
