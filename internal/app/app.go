// Package app wires every component from configuration. It is the only place
// that constructs the download orchestrator, the installer and the
// supervisor.
package app

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"enginectl/internal/config"
	"enginectl/internal/download"
	"enginectl/internal/engine"
	"enginectl/internal/hardware"
	"enginectl/internal/release"
	"enginectl/internal/supervisor"
	"enginectl/pkg/types"
)

// Options tune App construction beyond the config file.
type Options struct {
	Logger zerolog.Logger
	// Publisher additionally receives every download snapshot, e.g. a
	// terminal progress printer.
	Publisher download.Publisher
	// HTTPClient is used for release lookups and downloads.
	HTTPClient *http.Client
}

// App holds the constructed components.
type App struct {
	Config     config.Config
	Log        zerolog.Logger
	Probe      *hardware.Probe
	Releases   *release.Resolver
	Downloads  *download.Orchestrator
	Events     *download.Broadcaster
	Registry   *engine.Registry
	Installer  *engine.Installer
	Supervisor *supervisor.Supervisor

	mu     sync.Mutex
	record config.Record
}

// New builds an App. The shared record is created with defaults when missing.
func New(cfg config.Config, opts Options) (*App, error) {
	cfg = cfg.WithDefaults()
	log := opts.Logger
	rec, err := config.ReadRecord(cfg.RecordPath, config.DefaultRecord(cfg))
	if err != nil {
		if rec.DataFolderPath == "" {
			return nil, err
		}
		log.Warn().Err(err).Str("path", cfg.RecordPath).Msg("config record unreadable; using defaults")
	}

	a := &App{Config: cfg, Log: log, record: rec}
	a.Events = download.NewBroadcaster()
	a.Probe = hardware.New(log)
	a.Releases = release.NewResolver(cfg.ReleasesURL, opts.HTTPClient, log)
	a.Downloads = download.NewWithConfig(download.Config{
		HTTPClient:        opts.HTTPClient,
		InactivityTimeout: cfg.InactivityTimeout(),
		Publisher:         download.Tee(a.Events, opts.Publisher),
		Logger:            log,
	})
	a.Registry = engine.OpenRegistry(filepath.Join(rec.DataFolderPath, engine.RegistryFile))
	a.Installer = engine.NewInstaller(engine.InstallerConfig{
		DataDir:            rec.DataFolderPath,
		ToolkitURLTemplate: cfg.ToolkitURLTemplate,
		Resolver:           a.Releases,
		Downloads:          a.Downloads,
		Probe:              a.Probe,
		Registry:           a.Registry,
		Logger:             log,
	})
	a.Supervisor = supervisor.New(supervisor.Config{
		EnginesDir:     rec.EnginesDir(),
		Host:           rec.EngineHost,
		Port:           rec.EnginePort,
		HealthInterval: cfg.HealthInterval(),
		StartupTimeout: cfg.StartupTimeout(),
		OnHealthy:      a.persistAddress,
		Logger:         log,
	})
	return a, nil
}

// Record returns the current shared record.
func (a *App) Record() config.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.record
}

func (a *App) persistAddress(host string, port int) error {
	a.mu.Lock()
	a.record.EngineHost = host
	a.record.EnginePort = port
	rec := a.record
	a.mu.Unlock()
	return config.WriteRecord(a.Config.RecordPath, rec)
}

// ListEngines returns every engine record.
func (a *App) ListEngines() []types.EngineRecord { return a.Installer.ListEngines() }

// GetEngine returns one engine record.
func (a *App) GetEngine(name string) (types.EngineRecord, error) { return a.Installer.GetEngine(name) }

// InstallEngine blocks until the engine named name is installed.
func (a *App) InstallEngine(ctx context.Context, name string, req types.InstallEngineRequest) error {
	return a.Installer.Install(ctx, req.Options, req.Version, name, req.Force)
}

// StartEngine starts the engine detached from this process.
func (a *App) StartEngine(ctx context.Context) (types.OperationResult, error) {
	return a.Supervisor.Start(ctx, false)
}

// StopEngine stops the engine.
func (a *App) StopEngine(ctx context.Context) types.OperationResult { return a.Supervisor.Stop(ctx) }

// ProcessStatus reports the supervised process state.
func (a *App) ProcessStatus() types.ProcessStatus { return a.Supervisor.State() }

// SubmitDownload registers a download job and runs it in the background. An
// empty id is replaced with a generated one. ctx bounds the job, so it must
// outlive the caller's request.
func (a *App) SubmitDownload(ctx context.Context, req types.SubmitDownloadRequest) (types.SubmitDownloadResponse, error) {
	id := req.ID
	if id == "" {
		id = ksuid.New().String()
	}
	accepted, done := a.Downloads.SubmitAsync(ctx, download.Request{
		ID:       id,
		Title:    req.Title,
		Type:     req.Type,
		Targets:  req.Targets,
		Parallel: req.Parallel,
	})
	if !accepted {
		// a closed channel without a value means duplicate; a value is a
		// validation error
		if err, ok := <-done; ok && err != nil {
			return types.SubmitDownloadResponse{}, err
		}
		return types.SubmitDownloadResponse{ID: id, Accepted: false}, nil
	}
	go func() {
		if err := <-done; err != nil {
			a.Log.Debug().Err(err).Str("job", id).Msg("background download ended with error")
		}
	}()
	return types.SubmitDownloadResponse{ID: id, Accepted: true}, nil
}

// AbortDownload cancels an active job.
func (a *App) AbortDownload(id string) bool { return a.Downloads.Abort(id) }

// DownloadState returns the active job snapshot.
func (a *App) DownloadState() []types.DownloadJob { return a.Downloads.State() }

// SubscribeDownloads streams download snapshots until cancel is called.
func (a *App) SubscribeDownloads() (<-chan []types.DownloadJob, func()) { return a.Events.Subscribe() }
