package types

// DownloadStatus is the lifecycle state of a download job or one of its items.
type DownloadStatus string

const (
	DownloadQueued      DownloadStatus = "queued"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadDownloaded  DownloadStatus = "downloaded"
	DownloadError       DownloadStatus = "error"
)

// DownloadType classifies what a job fetches.
type DownloadType string

const (
	DownloadTypeEngine     DownloadType = "engine"
	DownloadTypeModel      DownloadType = "model"
	DownloadTypeDependency DownloadType = "dependency"
)

// DownloadSize tracks byte counts for one destination.
type DownloadSize struct {
	// Total bytes announced by the server; 0 while unknown.
	// example: 104857600
	Total int64 `json:"total" example:"104857600"`
	// Bytes written to the destination so far.
	// example: 52428800
	Transferred int64 `json:"transferred" example:"52428800"`
}

// DownloadItem is one destination file inside a job.
type DownloadItem struct {
	// Destination path; unique within the job.
	// example: /home/user/enginectl/engines/cortex.llamacpp-0.1.25-linux-amd64-avx2.tar.gz
	ID   string       `json:"id" example:"/home/user/enginectl/engines/cortex.llamacpp-0.1.25-linux-amd64-avx2.tar.gz"`
	Size DownloadSize `json:"size"`
	// Percentage of this item transferred.
	// example: 50
	Progress int `json:"progress" example:"50"`
	// example: downloading
	Status DownloadStatus `json:"status" example:"downloading"`
	// Transfer failure, when status is error.
	Error string `json:"error,omitempty"`
}

// DownloadJob is one logical multi-file download.
type DownloadJob struct {
	// Caller supplied id, unique among active jobs.
	// example: cortex.llamacpp
	ID string `json:"id" example:"cortex.llamacpp"`
	// example: cortex.llamacpp
	Title string `json:"title" example:"cortex.llamacpp"`
	// example: engine
	Type DownloadType `json:"type" example:"engine"`
	// Aggregate status.
	// example: downloading
	Status DownloadStatus `json:"status" example:"downloading"`
	// Aggregate progress over every item, 0..100.
	// example: 42
	Progress int            `json:"progress" example:"42"`
	Error    string         `json:"error,omitempty"`
	Children []DownloadItem `json:"children"`
}

// EngineRecord describes an installable engine.
type EngineRecord struct {
	// example: cortex.llamacpp
	Name string `json:"name" example:"cortex.llamacpp"`
	// example: This extension enables chat completion API calls using the LlamaCPP engine
	Description string `json:"description" example:"This extension enables chat completion API calls using the LlamaCPP engine"`
	// example: 0.1.25
	Version string `json:"version" example:"0.1.25"`
	// example: LlamaCPP Inference Engine
	ProductName string `json:"productName" example:"LlamaCPP Inference Engine"`
	// Whether the engine has been installed successfully.
	// example: true
	Installed bool `json:"installed" example:"true"`
}
