package model

// ImageConfig is the per-image configuration sent in individual mode.
type ImageConfig struct {
	ImageID         string           `json:"imageId"`
	Transformations []Transformation `json:"transformations"`
	OutputFormat    OutputFormat     `json:"outputFormat,omitempty"`
}

// BatchTransformationRequest is the body of both transform endpoints.
// ApplyToAll selects the form: batch requests carry Transformations and an
// optional OutputFormat, individual requests carry ImageConfigs.
type BatchTransformationRequest struct {
	ApplyToAll      bool             `json:"applyToAll"`
	Transformations []Transformation `json:"transformations,omitempty"`
	OutputFormat    OutputFormat     `json:"outputFormat,omitempty"`
	ImageConfigs    []ImageConfig    `json:"imageConfigs,omitempty"`
	Images          []string         `json:"images"`
}

// TransformedImage describes one output of a processed batch.
type TransformedImage struct {
	ID              FlexString `json:"id"`
	OriginalName    string     `json:"originalName"`
	TransformedName string     `json:"transformedName"`
	DownloadURL     string     `json:"downloadUrl"`
	Size            int64      `json:"size"`
	Format          string     `json:"format"`
}

// BatchResult is returned by the transform endpoints.
type BatchResult struct {
	BatchID        FlexString         `json:"batchId"`
	Images         []TransformedImage `json:"images"`
	TotalSize      int64              `json:"totalSize"`
	ImageCount     int                `json:"imageCount"`
	DownloadZipURL string             `json:"downloadZipUrl,omitempty"`
}

// ProgressStatus is the lifecycle of a transform submission.
type ProgressStatus string

const (
	ProgressIdle       ProgressStatus = "idle"
	ProgressProcessing ProgressStatus = "processing"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressError      ProgressStatus = "error"
)

// TransformationProgress is the client-side view of a submission in flight.
type TransformationProgress struct {
	Total      int            `json:"total"`
	Processed  int            `json:"processed"`
	Percentage int            `json:"percentage"`
	Status     ProgressStatus `json:"status"`
}
