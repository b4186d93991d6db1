package transfer

// Status values surfaced to API callers.
const (
	StatusProcessing = "processing"
	StatusPublishing = "publishing"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusNotFound   = "not_found"
)

type PublishCreation struct {
	PostID    int64    `json:"post_id"`
	ImageURLs []string `json:"image_urls"`
	ImageIDs  []int64  `json:"image_ids"`
	Caption   string   `json:"caption"`
}

// PublishStatus is the uniform response for StartPublish and QueryStatus.
type PublishStatus struct {
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	ProcessingKey string `json:"processing_key,omitempty"`
	Total         int    `json:"total_containers,omitempty"`
	Ready         int    `json:"ready_containers,omitempty"`
	Pending       int    `json:"pending_containers,omitempty"`
	Publishing    bool   `json:"publishing,omitempty"`
	MediaID       string `json:"media_id,omitempty"`
	Permalink     string `json:"permalink,omitempty"`
	Error         string `json:"error,omitempty"`
}
