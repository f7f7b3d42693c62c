package domain

import "io"

// ImageInput is what a caller submits to the similarity pipeline. Exactly
// one of SourceURL or Upload is set.
type ImageInput struct {
	SourceURL string
	Upload    io.Reader
	TopN      int
}

// StagedFileKind tells how a staged file got to disk.
type StagedFileKind string

const (
	StagedDownloaded StagedFileKind = "downloaded"
	StagedUploaded   StagedFileKind = "uploaded"
)

// StagedFile is a local copy of the input image owned by one resolution attempt.
type StagedFile struct {
	Path string         `json:"path"`
	Kind StagedFileKind `json:"kind"`
}

// ScoredProduct is one decoded row of the similarity matrix.
type ScoredProduct struct {
	Origin    string  `json:"origin"`
	ProductID string  `json:"productId"`
	Score     float64 `json:"score"`
}
