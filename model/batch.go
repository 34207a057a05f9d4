package model

// FileState is the terminal state one file reached in a batch.
type FileState string

const (
	FileStatePending       FileState = "pending"
	FileStateFetched       FileState = "fetched"
	FileStateExtracted     FileState = "extracted"
	FileStateBuilt         FileState = "built"
	FileStatePersisted     FileState = "persisted"
	FileStateStatusUpdated FileState = "status-updated"
	FileStateFailed        FileState = "failed"
)

// BatchRequest asks for a list of storage paths to be processed.
type BatchRequest struct {
	FilePaths          []string `json:"file_paths"`
	FeatureSet         string   `json:"feature_set"`
	IncludeRawFeatures bool     `json:"include_raw_features"`
}

// VaultDataRequest asks for every audio file of one device-day to be processed.
type VaultDataRequest struct {
	DeviceID           string `json:"device_id"`
	Date               string `json:"date"`
	FeatureSet         string `json:"feature_set"`
	IncludeRawFeatures bool   `json:"include_raw_features"`
}

// FeatureSummary is the mean and standard deviation of one descriptor over a timeline.
type FeatureSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// FileResult is the per-file outcome inside a BatchResult.
type FileResult struct {
	FilePath         string                    `json:"file_path"`
	State            FileState                 `json:"state"`
	DeviceID         string                    `json:"device_id,omitempty"`
	Date             string                    `json:"date,omitempty"`
	TimeBlock        string                    `json:"time_block,omitempty"`
	DurationSeconds  int                       `json:"duration_seconds"`
	TimelinePoints   int                       `json:"timeline_points"`
	FeaturesTimeline Timeline                  `json:"features_timeline,omitempty"`
	FeatureSummary   map[string]FeatureSummary `json:"feature_summary,omitempty"`
	ProcessingTime   float64                   `json:"processing_time"`
	Attempts         int                       `json:"attempts,omitempty"`
	Error            *string                   `json:"error"`
	StatusError      *string                   `json:"status_error,omitempty"`
}

// Persisted reports whether a record was committed for this file.
func (r *FileResult) Persisted() bool {
	return r.State == FileStatePersisted || r.State == FileStateStatusUpdated
}

// BatchResult summarises one orchestration pass.
type BatchResult struct {
	BatchID             string       `json:"batch_id"`
	FeatureSet          string       `json:"feature_set"`
	Success             bool         `json:"success"`
	ProcessedFiles      int          `json:"processed_files"`
	SavedKeys           []string     `json:"saved_keys"`
	StatusFailures      int          `json:"status_failures"`
	Results             []FileResult `json:"results"`
	TotalProcessingTime float64      `json:"total_processing_time"`
}
