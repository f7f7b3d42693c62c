package port

import (
	"context"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
)

// DefaultTopN is the number of similar vectors requested when the caller
// does not ask for a specific count.
const DefaultTopN = 4

// VisionProvider abstracts the external image vision service.
type VisionProvider interface {
	// ExtractVectors uploads one image file and returns its feature vectors.
	ExtractVectors(ctx context.Context, filePath string) (*domain.PredictionSet, error)

	// ScoreSimilarity uploads an archive of vectors and returns the N x N
	// similarity result limited to topN candidates per subject.
	ScoreSimilarity(ctx context.Context, archivePath string, topN int) (*domain.SimilarityMatrix, error)

	// Classify runs text classification.
	Classify(ctx context.Context, text string) (*domain.Classification, error)
}
