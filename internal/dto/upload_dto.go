package dto

// UploadResponse describes one stored file returned by the upload surface.
type UploadResponse struct {
	Success      bool   `json:"success"`
	FileName     string `json:"file_name"`
	URL          string `json:"url,omitempty"`
	Type         string `json:"type,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Error        string `json:"error,omitempty"`
}
