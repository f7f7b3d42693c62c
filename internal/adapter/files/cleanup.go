package files

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// Cleanup deletes every regular file in dir except those carrying the keep
// extension. A missing directory is not an error. Individual failures are
// joined and returned for logging; removal continues past them.
func (s *Store) Cleanup(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() || strings.EqualFold(filepath.Ext(e.Name()), s.cfg.KeepExt) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveAttempt cleans both attempt directories and removes them when empty.
func (s *Store) RemoveAttempt(a *port.Attempt) error {
	if a == nil {
		return nil
	}
	var errs []error
	for _, dir := range []string{a.ImageDir, a.VectorDir} {
		if err := s.Cleanup(dir); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
