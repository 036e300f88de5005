package types

// InstallOptions tunes which engine variant gets installed. Every field is
// optional; missing values are filled from hardware detection.
type InstallOptions struct {
	// CPU or GPU.
	// example: GPU
	RunMode string `json:"runMode,omitempty" yaml:"runMode,omitempty" example:"GPU"`
	// Accelerator vendor.
	// example: Nvidia
	GPUType string `json:"gpuType,omitempty" yaml:"gpuType,omitempty" example:"Nvidia"`
	// Major CUDA version (11 or 12).
	// example: 12
	CUDAVersion string `json:"cudaVersion,omitempty" yaml:"cudaVersion,omitempty" example:"12"`
	// CPU instruction tier: AVX, AVX2 or AVX512.
	// example: AVX2
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty" example:"AVX2"`
	// Use the Vulkan build.
	// example: false
	Vulkan bool `json:"vulkan,omitempty" yaml:"vulkan,omitempty" example:"false"`
}

// InstallEngineRequest is the body of POST /v1/engines/{name}/install.
type InstallEngineRequest struct {
	// Options are detected from the host when omitted.
	Options *InstallOptions `json:"options,omitempty"`
	// Release tag or "latest".
	// example: latest
	Version string `json:"version,omitempty" example:"latest"`
	// Reinstall even if the engine directory already exists.
	// example: false
	Force bool `json:"force,omitempty" example:"false"`
}

// DownloadTarget maps one source URL to a destination path.
type DownloadTarget struct {
	// example: https://example.com/files/a.bin
	URL string `json:"url" example:"https://example.com/files/a.bin"`
	// example: /tmp/a.bin
	Destination string `json:"destination" example:"/tmp/a.bin"`
}

// SubmitDownloadRequest is the body of POST /v1/downloads.
type SubmitDownloadRequest struct {
	// Job id; generated when empty.
	// example: j1
	ID string `json:"id,omitempty" example:"j1"`
	// example: Example files
	Title string `json:"title" example:"Example files"`
	// example: model
	Type DownloadType `json:"type" example:"model"`
	// Ordered targets. Sequential jobs transfer them in this order.
	Targets []DownloadTarget `json:"targets"`
	// Transfer every target concurrently.
	// example: false
	Parallel bool `json:"parallel,omitempty" example:"false"`
}

// SubmitDownloadResponse acknowledges a download submission.
type SubmitDownloadResponse struct {
	// example: j1
	ID string `json:"id" example:"j1"`
	// False when a job with the same id was already active.
	// example: true
	Accepted bool `json:"accepted" example:"true"`
}

// DownloadStateResponse wraps the active job snapshot.
type DownloadStateResponse struct {
	Jobs []DownloadJob `json:"jobs"`
}

// EnginesResponse wraps the list of engines returned by GET /v1/engines.
type EnginesResponse struct {
	Engines []EngineRecord `json:"engines"`
}

// OperationResult is returned by engine process start/stop.
type OperationResult struct {
	// example: Engine started successfully
	Message string `json:"message" example:"Engine started successfully"`
	// example: success
	Status string `json:"status" example:"success"`
}

// ProcessStatus describes the supervised engine process.
type ProcessStatus struct {
	// notRunning, starting, healthy or stopping.
	// example: healthy
	State string `json:"state" example:"healthy"`
	// example: 127.0.0.1
	Host string `json:"host" example:"127.0.0.1"`
	// example: 3929
	Port int `json:"port" example:"3929"`
	// Process ID when the engine was spawned by this supervisor.
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
