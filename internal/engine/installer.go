// Package engine installs engine releases and tracks which engines are
// installed.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"enginectl/internal/archive"
	"enginectl/internal/common/fsutil"
	"enginectl/internal/config"
	"enginectl/internal/download"
	"enginectl/internal/hardware"
	"enginectl/internal/release"
	"enginectl/pkg/types"
)

const (
	toolkitTitle = "Cuda Toolkit Dependencies"
	toolkitFile  = "cuda-toolkit.tar.gz"
)

// AssetResolver picks a release asset for an engine.
type AssetResolver interface {
	Resolve(ctx context.Context, engine, version string, matchers []string) (release.Asset, error)
}

// Downloader registers download jobs and reports their terminal error. A
// duplicate job id is not accepted.
type Downloader interface {
	SubmitAsync(ctx context.Context, req download.Request) (bool, <-chan error)
}

// OptionsDetector derives install options from the host.
type OptionsDetector interface {
	DefaultOptions(ctx context.Context) types.InstallOptions
}

// InstallerConfig encapsulates the collaborators of an Installer.
type InstallerConfig struct {
	DataDir string
	// ToolkitURLTemplate contains <version> and <platform> placeholders.
	ToolkitURLTemplate string
	Resolver           AssetResolver
	Downloads          Downloader
	Probe              OptionsDetector
	Registry           *Registry
	Logger             zerolog.Logger
	// GOOS and GOARCH default to the running platform.
	GOOS   string
	GOARCH string
}

// Installer composes release resolution, downloads and extraction.
type Installer struct {
	dataDir    string
	toolkitURL string
	resolver   AssetResolver
	downloads  Downloader
	probe      OptionsDetector
	registry   *Registry
	log        zerolog.Logger
	goos       string
	goarch     string
}

// NewInstaller constructs an Installer from InstallerConfig.
func NewInstaller(cfg InstallerConfig) *Installer {
	in := &Installer{
		dataDir:    cfg.DataDir,
		toolkitURL: cfg.ToolkitURLTemplate,
		resolver:   cfg.Resolver,
		downloads:  cfg.Downloads,
		probe:      cfg.Probe,
		registry:   cfg.Registry,
		log:        cfg.Logger,
		goos:       cfg.GOOS,
		goarch:     cfg.GOARCH,
	}
	if in.toolkitURL == "" {
		in.toolkitURL = config.DefaultToolkitURLTemplate
	}
	if in.registry == nil {
		in.registry = OpenRegistry("")
	}
	if in.goos == "" {
		in.goos = runtime.GOOS
	}
	if in.goarch == "" {
		in.goarch = runtime.GOARCH
	}
	return in
}

// EnginesDir is {dataDir}/engines.
func (in *Installer) EnginesDir() string { return filepath.Join(in.dataDir, config.EnginesFolder) }

// ListEngines returns every engine record.
func (in *Installer) ListEngines() []types.EngineRecord { return in.registry.List() }

// GetEngine returns one engine record.
func (in *Installer) GetEngine(name string) (types.EngineRecord, error) { return in.registry.Get(name) }

// Install fetches and unpacks the engine release matching opts, plus the CUDA
// toolkit when the options call for it. An existing engine directory is left
// alone unless force is set.
func (in *Installer) Install(ctx context.Context, opts *types.InstallOptions, version, name string, force bool) error {
	engine, ok := Canonical(name)
	if !ok {
		return ErrEngineNotFound(name)
	}
	if version == "" {
		version = "latest"
	}
	if opts == nil && engine == LlamaCPP && in.probe != nil {
		detected := in.probe.DefaultOptions(ctx)
		opts = &detected
	}
	if opts == nil {
		opts = &types.InstallOptions{}
	}
	log := in.log.With().Str("engine", engine).Str("version", version).Logger()

	engineDir := filepath.Join(in.EnginesDir(), engine)
	if fsutil.IsDir(engineDir) && !force {
		log.Info().Str("path", engineDir).Msg("engine already present; skipping install")
		return in.registry.MarkInstalled(engine, "")
	}

	vulkan := useVulkan(engine, *opts)
	matchers := Matchers(in.goos, in.goarch, engine, *opts, vulkan)
	log.Debug().Str("options", describe(*opts)).Strs("matchers", matchers).Msg("resolving engine asset")
	asset, err := in.resolver.Resolve(ctx, engine, version, matchers)
	if err != nil {
		log.Error().Err(err).Strs("matchers", matchers).Msg("no engine asset for platform")
		return err
	}
	if err := os.MkdirAll(in.EnginesDir(), 0o755); err != nil {
		return err
	}
	archivePath := filepath.Join(in.EnginesDir(), asset.Name)
	log.Info().Str("asset", asset.Name).Msg("downloading engine")
	err = in.fetch(ctx, download.Request{
		ID:      asset.URL(),
		Title:   engine,
		Type:    types.DownloadTypeEngine,
		Targets: []types.DownloadTarget{{URL: asset.URL(), Destination: archivePath}},
		OnComplete: func(context.Context) error {
			return archive.Install(archivePath, in.EnginesDir(), engineDir)
		},
	})
	if err != nil {
		return err
	}

	if needsToolkit(engine, *opts) {
		if err := in.installToolkit(ctx, opts.CUDAVersion); err != nil {
			return err
		}
	}
	log.Info().Msg("engine installed")
	return in.registry.MarkInstalled(engine, asset.Version)
}

func (in *Installer) installToolkit(ctx context.Context, cudaVersion string) error {
	url := ToolkitURL(in.toolkitURL, in.goos, cudaVersion)
	dest := filepath.Join(in.dataDir, toolkitFile)
	in.log.Info().Str("url", url).Msg("downloading CUDA toolkit dependency")
	return in.fetch(ctx, download.Request{
		ID:      url,
		Title:   toolkitTitle,
		Type:    types.DownloadTypeDependency,
		Targets: []types.DownloadTarget{{URL: url, Destination: dest}},
		OnComplete: func(context.Context) error {
			return archive.Install(dest, in.EnginesDir(), "")
		},
	})
}

func (in *Installer) fetch(ctx context.Context, req download.Request) error {
	accepted, done := in.downloads.SubmitAsync(ctx, req)
	if !accepted {
		if err, ok := <-done; ok {
			return err
		}
		return installInProgressError{name: req.Title}
	}
	return <-done
}

// useVulkan is true for the llama.cpp engine when Vulkan is requested or a
// non-Nvidia GPU is selected.
func useVulkan(engine string, opts types.InstallOptions) bool {
	if engine != LlamaCPP {
		return false
	}
	return opts.Vulkan || (opts.RunMode == hardware.RunModeGPU && opts.GPUType != hardware.GPUNvidia)
}

func needsToolkit(engine string, opts types.InstallOptions) bool {
	return supportsAcceleration(engine) &&
		opts.RunMode == hardware.RunModeGPU &&
		opts.GPUType == hardware.GPUNvidia &&
		!opts.Vulkan
}

// Matchers returns the asset name substrings for a platform and option set.
// Entries that do not apply are empty strings.
func Matchers(goos, goarch, engine string, opts types.InstallOptions, vulkan bool) []string {
	m := make([]string, 0, 5)
	switch goos {
	case "windows":
		m = append(m, "-windows")
	case "darwin":
		m = append(m, "-mac")
	default:
		m = append(m, "-linux")
	}
	if opts.Instructions != "" && !vulkan {
		m = append(m, "-"+strings.ToLower(opts.Instructions))
	} else {
		m = append(m, "")
	}
	if opts.RunMode == hardware.RunModeGPU && opts.GPUType == hardware.GPUNvidia && !vulkan {
		cuda := opts.CUDAVersion
		if cuda == "" {
			cuda = "12"
		}
		m = append(m, "cuda-"+cuda)
	} else {
		m = append(m, "")
	}
	if vulkan {
		m = append(m, "-vulkan")
	} else {
		m = append(m, "")
	}
	switch {
	case engine == TensorRTLLM:
		m = append(m, "")
	case goarch == "arm64":
		m = append(m, "-arm64")
	default:
		m = append(m, "-amd64")
	}
	return m
}

// ToolkitURL fills the toolkit template for the platform and CUDA major
// version ("11" selects 11.7, anything else 12.3).
func ToolkitURL(template, goos, cudaVersion string) string {
	version := "12.3"
	if cudaVersion == "11" {
		version = "11.7"
	}
	platform := "linux"
	if goos == "windows" {
		platform = "windows"
	}
	return strings.NewReplacer("<version>", version, "<platform>", platform).Replace(template)
}

// describe renders options for logs.
func describe(opts types.InstallOptions) string {
	return fmt.Sprintf("runMode=%s gpuType=%s cuda=%s instructions=%s vulkan=%t",
		opts.RunMode, opts.GPUType, opts.CUDAVersion, opts.Instructions, opts.Vulkan)
}
