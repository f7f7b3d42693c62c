package domain

import "time"

// VectorRecord is one entry of the persisted vector library.
type VectorRecord struct {
	Origin         string    `json:"origin"         db:"origin"`
	ProductID      string    `json:"productId"      db:"productid"`
	Vector         []byte    `json:"-"              db:"imgvector"`
	ImageExtension string    `json:"imageExtension" db:"imgextension"`
	CreatedAt      time.Time `json:"createdAt"      db:"created_at"`
}

// Prediction is one detected subject returned by feature extraction.
type Prediction struct {
	ID             string    `json:"id,omitempty"`
	Name           string    `json:"name,omitempty"`
	FeatureVectors []float64 `json:"featureVectors"`
}

// Identifier returns the subject identifier. The service reports it as
// "name" for uploaded files and "id" elsewhere.
func (p Prediction) Identifier() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Name
}

// PredictionSet is the decoded feature extraction response.
type PredictionSet struct {
	Predictions []Prediction `json:"predictions"`
}

// SimilarVector is one scored candidate.
type SimilarVector struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// SimilarityRow holds the candidates scored against one subject.
type SimilarityRow struct {
	ID             string          `json:"id"`
	SimilarVectors []SimilarVector `json:"similarVectors"`
}

// SimilarityMatrix is the decoded similarity scoring response.
type SimilarityMatrix struct {
	Predictions []SimilarityRow `json:"predictions"`
}

// Classification is the result of text classification.
type Classification struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}
