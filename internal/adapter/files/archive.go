package files

import (
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// BuildComparisonArchive writes a zip into dir holding the subject vector
// plus every library vector, each as its own entry. A failed build leaves no
// file behind.
func (s *Store) BuildComparisonArchive(dir, subjectID string, subject []float64, library []domain.VectorRecord) (string, error) {
	zipPath := filepath.Join(dir, uuid.NewString()+".zip")

	payload, err := json.Marshal(subject)
	if err != nil {
		return "", &port.PackagingError{Path: zipPath, Err: err}
	}

	if err := s.writeArchive(zipPath, subjectID+VectorExt, payload, library); err != nil {
		_ = os.Remove(zipPath)
		return "", &port.PackagingError{Path: zipPath, Err: err}
	}
	return zipPath, nil
}

func (s *Store) writeArchive(zipPath, subjectEntry string, subject []byte, library []domain.VectorRecord) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	write := func(name string, data []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	if err := write(subjectEntry, subject); err != nil {
		out.Close()
		return err
	}
	for _, rec := range library {
		if err := write(s.EncodeEntryName(rec.Origin, rec.ProductID, rec.ImageExtension), rec.Vector); err != nil {
			out.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
