package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"enginectl/internal/archive"
	"enginectl/internal/download"
	"enginectl/internal/release"
	"enginectl/pkg/types"
)

type fakeResolver struct {
	mu       sync.Mutex
	calls    int
	matchers []string
	asset    release.Asset
	err      error
}

func (f *fakeResolver) Resolve(_ context.Context, _, _ string, matchers []string) (release.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.matchers = matchers
	return f.asset, f.err
}

type fakeProbe struct{ opts types.InstallOptions }

func (p fakeProbe) DefaultOptions(context.Context) types.InstallOptions { return p.opts }

// countingDownloader records submissions and completes them without network.
type countingDownloader struct {
	reqs []download.Request
}

func (d *countingDownloader) SubmitAsync(_ context.Context, req download.Request) (bool, <-chan error) {
	d.reqs = append(d.reqs, req)
	done := make(chan error, 1)
	done <- nil
	close(done)
	return true, done
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestMatchers(t *testing.T) {
	cases := []struct {
		name   string
		goos   string
		goarch string
		engine string
		opts   types.InstallOptions
		want   []string
	}{
		{
			name: "windows avx2 cpu", goos: "windows", goarch: "amd64", engine: LlamaCPP,
			opts: types.InstallOptions{RunMode: "CPU", GPUType: "Nvidia", Instructions: "AVX2"},
			want: []string{"-windows", "-avx2", "", "", "-amd64"},
		},
		{
			name: "linux nvidia default cuda", goos: "linux", goarch: "amd64", engine: LlamaCPP,
			opts: types.InstallOptions{RunMode: "GPU", GPUType: "Nvidia", Instructions: "AVX512"},
			want: []string{"-linux", "-avx512", "cuda-12", "", "-amd64"},
		},
		{
			name: "non nvidia gpu is vulkan", goos: "linux", goarch: "amd64", engine: LlamaCPP,
			opts: types.InstallOptions{RunMode: "GPU", GPUType: "AMD", Instructions: "AVX2"},
			want: []string{"-linux", "", "", "-vulkan", "-amd64"},
		},
		{
			name: "mac arm", goos: "darwin", goarch: "arm64", engine: LlamaCPP,
			want: []string{"-mac", "", "", "", "-arm64"},
		},
		{
			name: "tensorrt has no arch", goos: "windows", goarch: "amd64", engine: TensorRTLLM,
			opts: types.InstallOptions{RunMode: "GPU", GPUType: "Nvidia", CUDAVersion: "11"},
			want: []string{"-windows", "", "cuda-11", "", ""},
		},
	}
	for _, tc := range cases {
		got := Matchers(tc.goos, tc.goarch, tc.engine, tc.opts, useVulkan(tc.engine, tc.opts))
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestMatchers_SelectWindowsAVX2Asset(t *testing.T) {
	assets := []release.Asset{{Name: "engine-windows-avx2.tar.gz"}, {Name: "engine-windows.tar.gz"}}
	m := Matchers("windows", "amd64", ONNX, types.InstallOptions{Instructions: "AVX2"}, false)
	// onnx assets carry no arch suffix in this fixture
	m[len(m)-1] = ""
	got, ok := release.SelectAsset(assets, m)
	if !ok || got.Name != "engine-windows-avx2.tar.gz" {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
}

func TestToolkitURL(t *testing.T) {
	tmpl := "https://host/<version>/<platform>/cuda.tar.gz"
	if got := ToolkitURL(tmpl, "windows", "11"); got != "https://host/11.7/windows/cuda.tar.gz" {
		t.Fatalf("got %s", got)
	}
	if got := ToolkitURL(tmpl, "linux", ""); got != "https://host/12.3/linux/cuda.tar.gz" {
		t.Fatalf("got %s", got)
	}
	if got := ToolkitURL(tmpl, "darwin", "12"); got != "https://host/12.3/linux/cuda.tar.gz" {
		t.Fatalf("got %s", got)
	}
}

func TestInstall_ExistingDirSkipsNetwork(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dataDir, "engines", LlamaCPP), 0o755); err != nil {
		t.Fatal(err)
	}
	res := &fakeResolver{}
	dl := &countingDownloader{}
	reg := OpenRegistry(filepath.Join(dataDir, RegistryFile))
	in := NewInstaller(InstallerConfig{
		DataDir:   dataDir,
		Resolver:  res,
		Downloads: dl,
		Probe:     fakeProbe{opts: types.InstallOptions{RunMode: "GPU", GPUType: "Nvidia"}},
		Registry:  reg,
		Logger:    zerolog.Nop(),
	})
	if err := in.Install(context.Background(), nil, "latest", Default, false); err != nil {
		t.Fatalf("install: %v", err)
	}
	if res.calls != 0 || len(dl.reqs) != 0 {
		t.Fatalf("expected zero network calls, resolver=%d downloads=%d", res.calls, len(dl.reqs))
	}
	rec, err := in.GetEngine(LlamaCPP)
	if err != nil || !rec.Installed {
		t.Fatalf("existing engine should be reported installed: %+v err=%v", rec, err)
	}
}

func TestInstall_UnknownEngine(t *testing.T) {
	in := NewInstaller(InstallerConfig{DataDir: t.TempDir(), Resolver: &fakeResolver{}, Downloads: &countingDownloader{}, Logger: zerolog.Nop()})
	if err := in.Install(context.Background(), nil, "", "cortex.nope", false); !IsEngineNotFound(err) {
		t.Fatalf("expected engine not found, got %v", err)
	}
}

func TestInstall_NotFoundIsReturned(t *testing.T) {
	res := &fakeResolver{err: release.ErrNotFound}
	dl := &countingDownloader{}
	in := NewInstaller(InstallerConfig{DataDir: t.TempDir(), Resolver: res, Downloads: dl, Logger: zerolog.Nop()})
	err := in.Install(context.Background(), &types.InstallOptions{}, "latest", ONNX, false)
	if !release.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(dl.reqs) != 0 {
		t.Fatalf("no download should start without an asset")
	}
	if rec, _ := in.GetEngine(ONNX); rec.Installed {
		t.Fatalf("failed install must not mark the engine installed")
	}
}

func TestInstall_DownloadsExtractsAndInstallsToolkit(t *testing.T) {
	engineArchive := tarGz(t, map[string]string{
		LlamaCPP + "/libengine.so": "engine",
		LlamaCPP + "/libgomp.so":   "gomp",
	})
	toolkitArchive := tarGz(t, map[string]string{"libcublas.so": "cublas"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/engine.tar.gz"):
			_, _ = w.Write(engineArchive)
		case strings.HasSuffix(r.URL.Path, "/cuda.tar.gz"):
			if !strings.Contains(r.URL.Path, "/11.7/linux/") {
				t.Errorf("unexpected toolkit path %s", r.URL.Path)
			}
			_, _ = w.Write(toolkitArchive)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	res := &fakeResolver{asset: release.Asset{
		Name:               "cortex.llamacpp-0.1.25-linux-amd64-avx2-cuda-11-7.tar.gz",
		BrowserDownloadURL: srv.URL + "/engine.tar.gz",
		Version:            "0.1.25",
	}}
	pub := download.NewMemoryPublisher()
	orch := download.NewWithConfig(download.Config{Publisher: pub, Logger: zerolog.Nop()})
	regPath := filepath.Join(dataDir, RegistryFile)
	in := NewInstaller(InstallerConfig{
		DataDir:            dataDir,
		ToolkitURLTemplate: srv.URL + "/<version>/<platform>/cuda.tar.gz",
		Resolver:           res,
		Downloads:          orch,
		Registry:           OpenRegistry(regPath),
		Logger:             zerolog.Nop(),
		GOOS:               "linux",
		GOARCH:             "amd64",
	})
	opts := &types.InstallOptions{RunMode: "GPU", GPUType: "Nvidia", CUDAVersion: "11", Instructions: "AVX2"}
	if err := in.Install(context.Background(), opts, "latest", LlamaCPP, false); err != nil {
		t.Fatalf("install: %v", err)
	}
	if strings.Join(res.matchers, "|") != "-linux|-avx2|cuda-11||-amd64" {
		t.Fatalf("unexpected matchers %q", res.matchers)
	}
	engines := in.EnginesDir()
	for path, want := range map[string]string{
		filepath.Join(engines, LlamaCPP, "libengine.so"): "engine",
		filepath.Join(engines, "libgomp.so"):             "gomp",
		filepath.Join(engines, "libcublas.so"):           "cublas",
	} {
		b, err := os.ReadFile(path)
		if err != nil || string(b) != want {
			t.Fatalf("%s: %q err=%v", path, b, err)
		}
	}
	if _, err := os.Stat(filepath.Join(engines, res.asset.Name)); !os.IsNotExist(err) {
		t.Fatalf("engine archive should be removed")
	}
	if _, err := os.Stat(filepath.Join(dataDir, toolkitFile)); !os.IsNotExist(err) {
		t.Fatalf("toolkit archive should be removed")
	}
	// registry persisted and reloadable
	rec, err := OpenRegistry(regPath).Get(Default)
	if err != nil || !rec.Installed || rec.Version != "0.1.25" {
		t.Fatalf("unexpected persisted record %+v err=%v", rec, err)
	}
	// both jobs announced themselves with their titles
	titles := map[string]bool{}
	for _, s := range pub.Snapshots() {
		for _, j := range s {
			titles[j.Title] = true
		}
	}
	if !titles[LlamaCPP] || !titles[toolkitTitle] {
		t.Fatalf("expected engine and toolkit jobs, saw %v", titles)
	}
}

func TestInstall_CorruptArchiveIsExtractionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("definitely not gzip"))
	}))
	defer srv.Close()
	dataDir := t.TempDir()
	in := NewInstaller(InstallerConfig{
		DataDir:   dataDir,
		Resolver:  &fakeResolver{asset: release.Asset{Name: "cortex.onnx-windows.tar.gz", DownloadURL: srv.URL + "/x"}},
		Downloads: download.NewWithConfig(download.Config{Logger: zerolog.Nop()}),
		Logger:    zerolog.Nop(),
	})
	err := in.Install(context.Background(), &types.InstallOptions{}, "latest", ONNX, true)
	if !archive.IsExtractionError(err) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if rec, _ := in.GetEngine(ONNX); rec.Installed {
		t.Fatalf("failed install must not mark the engine installed")
	}
}

func TestInstall_ConcurrentInstallIsInProgress(t *testing.T) {
	body := tarGz(t, map[string]string{ONNX + "/engine.so": "onnx"})
	gate := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(gate) }) }
	hit := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hit <- struct{}{}:
		default:
		}
		<-gate
		_, _ = w.Write(body)
	}))
	defer srv.Close()
	defer unblock()

	dataDir := t.TempDir()
	res := &fakeResolver{asset: release.Asset{
		Name:               "cortex.onnx-0.1.7-linux-amd64.tar.gz",
		BrowserDownloadURL: srv.URL + "/onnx.tar.gz",
		Version:            "0.1.7",
	}}
	orch := download.NewWithConfig(download.Config{Publisher: download.NewMemoryPublisher(), Logger: zerolog.Nop()})
	reg := OpenRegistry(filepath.Join(dataDir, RegistryFile))
	in := NewInstaller(InstallerConfig{
		DataDir:   dataDir,
		Resolver:  res,
		Downloads: orch,
		Registry:  reg,
		Logger:    zerolog.Nop(),
		GOOS:      "linux",
		GOARCH:    "amd64",
	})

	first := make(chan error, 1)
	go func() { first <- in.Install(context.Background(), &types.InstallOptions{}, "latest", ONNX, false) }()
	<-hit

	err := in.Install(context.Background(), &types.InstallOptions{}, "latest", ONNX, false)
	if !IsInstallInProgress(err) {
		t.Fatalf("expected install in progress, got %v", err)
	}
	if rec, _ := in.GetEngine(ONNX); rec.Installed {
		t.Fatalf("engine must not be marked installed while the first download runs")
	}

	unblock()
	if err := <-first; err != nil {
		t.Fatalf("first install: %v", err)
	}
	if rec, _ := in.GetEngine(ONNX); !rec.Installed || rec.Version != "0.1.7" {
		t.Fatalf("first install should complete: %+v", rec)
	}
}
