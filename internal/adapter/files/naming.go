package files

import (
	"path/filepath"
	"strings"

	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// VectorExt is appended to every archive entry.
const VectorExt = ".txt"

// EncodeEntryName names the archive entry for one library record:
// origin + separator + productId + imageExt + ".txt".
func (s *Store) EncodeEntryName(origin, productID, imageExt string) string {
	return origin + s.cfg.Separator + productID + imageExt + VectorExt
}

// DecodeEntryName reverses EncodeEntryName. The product id ends at the first
// '.' after the separator.
func (s *Store) DecodeEntryName(name string) (string, string, error) {
	name = strings.TrimSuffix(name, VectorExt)
	i := strings.Index(name, s.cfg.Separator)
	if i <= 0 {
		return "", "", port.ErrBadEntryName
	}
	origin := name[:i]
	rest := name[i+len(s.cfg.Separator):]
	if j := strings.IndexByte(rest, '.'); j >= 0 {
		rest = rest[:j]
	}
	if rest == "" {
		return "", "", port.ErrBadEntryName
	}
	return origin, rest, nil
}

// SubjectID is the identifier of a staged file: its base name without extension.
func (s *Store) SubjectID(stagedPath string) string { return SubjectID(stagedPath) }

// EntryStem is the method form of the package-level EntryStem.
func (s *Store) EntryStem(id string) string { return EntryStem(id) }

// SubjectID is the identifier of a staged file: its base name without extension.
func SubjectID(stagedPath string) string {
	base := filepath.Base(stagedPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// EntryStem strips the vector extension and then any image extension from
// an identifier reported by the scoring call.
func EntryStem(id string) string {
	id = strings.TrimSuffix(id, VectorExt)
	return strings.TrimSuffix(id, filepath.Ext(id))
}
