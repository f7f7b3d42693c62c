package port

import (
	"context"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
)

// Attempt holds the transient directories owned by one resolution attempt.
type Attempt struct {
	ID        string
	ImageDir  string
	VectorDir string
}

// FileStore manages transient files for the similarity pipeline.
type FileStore interface {
	NewAttempt(id string) (*Attempt, error)
	Stage(ctx context.Context, dir string, in domain.ImageInput) (*domain.StagedFile, error)
	BuildComparisonArchive(dir, subjectID string, subject []float64, library []domain.VectorRecord) (string, error)
	DecodeEntryName(name string) (origin, productID string, err error)
	SubjectID(stagedPath string) string
	EntryStem(id string) string
	Cleanup(dir string) error
	RemoveAttempt(a *Attempt) error
}
