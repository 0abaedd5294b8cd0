package media

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"snapgram/errs"
	"strconv"
	"strings"
)

// ObjectStore keeps uploaded media. PreviewURL is pure and does not check
// that the object exists.
type ObjectStore interface {
	Put(ctx context.Context, r io.Reader) (string, error)
	PreviewURL(fileID string, preview Preview) (string, error)
	Delete(ctx context.Context, fileID string) error
}

type Preview struct {
	Width   int
	Height  int
	Gravity string
	Quality int
}

// DefaultPreview is the transform every post and avatar image is shown with.
var DefaultPreview = Preview{Width: 2000, Height: 2000, Gravity: "top", Quality: 100}

// DiskStore writes objects as files named by their id under dir and serves
// them under baseURL/media/<id>.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *DiskStore) Put(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fileID := uuid.NewString()
	path := s.path(fileID)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", errs.Upstream("store media", err)
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(path)
		return "", errs.Upstream("store media", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", errs.Upstream("store media", err)
	}
	return fileID, nil
}

func (s *DiskStore) PreviewURL(fileID string, preview Preview) (string, error) {
	if !validID(fileID) {
		return "", errs.InvalidOperation("invalid media id %q", fileID)
	}
	query := url.Values{}
	query.Set("width", strconv.Itoa(preview.Width))
	query.Set("height", strconv.Itoa(preview.Height))
	query.Set("gravity", preview.Gravity)
	query.Set("quality", strconv.Itoa(preview.Quality))
	return fmt.Sprintf("%s/media/%s?%s", s.baseURL, fileID, query.Encode()), nil
}

func (s *DiskStore) Delete(ctx context.Context, fileID string) error {
	if !validID(fileID) {
		return errs.NotFound("media", fileID)
	}
	err := os.Remove(s.path(fileID))
	if errors.Is(err, os.ErrNotExist) {
		return errs.NotFound("media", fileID)
	}
	if err != nil {
		return errs.Upstream("delete media", err)
	}
	return nil
}

// ServeHTTP serves GET /media/{id}. Transform parameters are accepted and
// ignored; the original is returned.
func (s *DiskStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("id")
	if !validID(fileID) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.path(fileID))
}

func (s *DiskStore) path(fileID string) string {
	return filepath.Join(s.dir, fileID)
}

// Only ids this store generated are accepted, which also rules out path
// traversal.
func validID(fileID string) bool {
	_, err := uuid.Parse(fileID)
	return err == nil && len(fileID) == 36
}
