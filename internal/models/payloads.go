package models

// TimestampLayout is the human-readable format of AnalysisResult.AnalysisTimestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// AnalysisResult is the terminal artifact of one analysis request and the
// JSON body returned to clients.
type AnalysisResult struct {
	AnalysisID        string `json:"analysis_id"`
	MarkdownContent   string `json:"markdown_content"`
	PDFFilename       string `json:"pdf_filename"`
	TotalPages        int    `json:"total_pages"`
	AnalysisTimestamp string `json:"analysis_timestamp"`
	ModelUsed         string `json:"model_used"`
	OutputPath        string `json:"output_path,omitempty"`
}

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// GCSEvent is the payload of a storage object-finalize CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// ServiceInfo is returned by the HTTP function for GET requests.
type ServiceInfo struct {
	Service         string `json:"service"`
	Status          string `json:"status"`
	DefaultMaxPages int    `json:"default_max_pages"`
	MaxPagesLimit   int    `json:"max_pages_limit"`
}
