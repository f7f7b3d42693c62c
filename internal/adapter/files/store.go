// Package files implements the transient file store used by the similarity
// pipeline: staging the input image, packaging the comparison archive and
// cleaning up afterwards.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

const uploadExt = ".jpg"

// Config holds the transient file store settings.
type Config struct {
	TempDir   string // staged input images
	VectorDir string // comparison archives
	Separator string // between origin and product id in archive entry names
	KeepExt   string // files with this extension survive Cleanup
}

// Store implements port.FileStore on the local disk.
type Store struct {
	cfg        Config
	httpClient *http.Client
}

var _ port.FileStore = (*Store)(nil)

// NewStore creates a store. A nil client falls back to http.DefaultClient.
func NewStore(cfg Config, client *http.Client) *Store {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Separator == "" {
		cfg.Separator = "__"
	}
	if cfg.KeepExt == "" {
		cfg.KeepExt = ".md"
	}
	return &Store{cfg: cfg, httpClient: client}
}

// NewAttempt creates the per-attempt subdirectories under TempDir and VectorDir.
func (s *Store) NewAttempt(id string) (*port.Attempt, error) {
	a := &port.Attempt{
		ID:        id,
		ImageDir:  filepath.Join(s.cfg.TempDir, id),
		VectorDir: filepath.Join(s.cfg.VectorDir, id),
	}
	for _, dir := range []string{a.ImageDir, a.VectorDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &port.StagingError{Source: dir, Err: err}
		}
	}
	return a, nil
}

// Stage copies the input image into dir. URL inputs are probed with HEAD and
// then downloaded; uploads are written out and renamed to a .jpg name.
func (s *Store) Stage(ctx context.Context, dir string, in domain.ImageInput) (*domain.StagedFile, error) {
	switch {
	case in.SourceURL != "" && in.Upload != nil:
		return nil, &port.StagingError{Source: "input", Err: errors.New("both url and upload given")}
	case in.SourceURL != "":
		p, err := s.Download(ctx, in.SourceURL, dir, uuid.NewString()+ImageExt(in.SourceURL))
		if err != nil {
			return nil, err
		}
		return &domain.StagedFile{Path: p, Kind: domain.StagedDownloaded}, nil
	case in.Upload != nil:
		p, err := s.saveUpload(dir, in.Upload)
		if err != nil {
			return nil, err
		}
		return &domain.StagedFile{Path: p, Kind: domain.StagedUploaded}, nil
	default:
		return nil, &port.StagingError{Source: "input", Err: errors.New("no url or upload given")}
	}
}

// Download probes rawURL with HEAD, then streams its body to dir/filename.
// The probe is advisory: only the GET decides whether staging succeeds.
func (s *Store) Download(ctx context.Context, rawURL, dir, filename string) (string, error) {
	s.probe(ctx, rawURL)

	get, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &port.StagingError{Source: rawURL, Err: err}
	}
	resp, err := s.httpClient.Do(get)
	if err != nil {
		return "", &port.StagingError{Source: rawURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &port.StagingError{Source: rawURL, Err: fmt.Errorf("get status %d", resp.StatusCode)}
	}

	dst := filepath.Join(dir, filename)
	if err := writeFile(dst, resp.Body); err != nil {
		return "", &port.StagingError{Source: rawURL, Err: err}
	}
	return dst, nil
}

// probe sends a HEAD request and logs anything unexpected. Signed URLs
// often reject HEAD while serving GET.
func (s *Store) probe(ctx context.Context, rawURL string) {
	head, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return
	}
	resp, err := s.httpClient.Do(head)
	if err != nil {
		slog.Warn("image head probe failed", "url", rawURL, "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		slog.Warn("image head probe rejected", "url", rawURL, "status", resp.StatusCode)
	}
}

func (s *Store) saveUpload(dir string, r io.Reader) (string, error) {
	tmp := filepath.Join(dir, uuid.NewString())
	if err := writeFile(tmp, r); err != nil {
		return "", &port.StagingError{Source: "upload", Err: err}
	}
	dst := tmp + uploadExt
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", &port.StagingError{Source: "upload", Err: fmt.Errorf("rename: %w", err)}
	}
	return dst, nil
}

func writeFile(dst string, r io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

// ImageExt returns the extension of the URL path, ignoring the query
// string. URLs without one are treated as .jpg.
func ImageExt(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if ext := path.Ext(p); ext != "" {
		return ext
	}
	return uploadExt
}
