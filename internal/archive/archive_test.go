package archive

import (
	"archive/tar"
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
)

type entry struct {
	name string
	body string
	dir  bool
}

func writeTarGz(t *testing.T, path string, entries []entry) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o755, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Size = 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("header: %v", err)
		}
		if !e.dir {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
}

func writeZip(t *testing.T, path string, entries []entry) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestInstall_TarGzExtractsRemovesAndPromotes(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "cortex.llamacpp-0.1.25-linux-amd64-avx2.tar.gz")
	writeTarGz(t, archivePath, []entry{
		{name: "cortex.llamacpp/", dir: true},
		{name: "cortex.llamacpp/libengine.so", body: "engine"},
		{name: "cortex.llamacpp/libcudart.so", body: "cudart"},
		{name: "cortex.llamacpp/cublas.dll", body: "cublas"},
		{name: "cortex.llamacpp/sub/inner.txt", body: "inner"},
	})
	engineDir := filepath.Join(dir, "cortex.llamacpp")
	if err := Install(archivePath, dir, engineDir); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := os.Stat(archivePath); !os.IsNotExist(err) {
		t.Fatalf("archive should be removed, stat err=%v", err)
	}
	if got := readFile(t, filepath.Join(engineDir, "libengine.so")); got != "engine" {
		t.Fatalf("unexpected engine lib contents %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "libcudart.so")); got != "cudart" {
		t.Fatalf("support file not promoted: %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "libengine.so")); !os.IsNotExist(err) {
		t.Fatalf("engine library must stay in the engine dir")
	}
	if _, err := os.Stat(filepath.Join(dir, "sub")); !os.IsNotExist(err) {
		t.Fatalf("directories are not promoted")
	}
}

func TestExtract_Zip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "e.zip")
	writeZip(t, archivePath, []entry{{name: "e/a.txt", body: "a"}, {name: "e/b/c.txt", body: "c"}})
	dest := filepath.Join(dir, "out")
	if err := Extract(archivePath, dest); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := readFile(t, filepath.Join(dest, "e", "b", "c.txt")); got != "c" {
		t.Fatalf("unexpected contents %q", got)
	}
	if _, err := os.Stat(archivePath); err != nil {
		t.Fatalf("Extract alone keeps the archive: %v", err)
	}
}

func TestExtract_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.tgz")
	writeTarGz(t, archivePath, []entry{{name: "../escape.txt", body: "x"}})
	dest := filepath.Join(dir, "out")
	err := Extract(archivePath, dest)
	if !IsExtractionError(err) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); !os.IsNotExist(err) {
		t.Fatalf("entry escaped destination")
	}
}

func TestExtract_CorruptAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.tar.gz")
	if err := os.WriteFile(bad, []byte("not gzip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Install(bad, dir, ""); !IsExtractionError(err) {
		t.Fatalf("expected ExtractionError for corrupt archive, got %v", err)
	}
	if _, err := os.Stat(bad); err != nil {
		t.Fatalf("failed install should leave the archive: %v", err)
	}
	odd := filepath.Join(dir, "file.rar")
	if err := os.WriteFile(odd, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Extract(odd, dir); !IsExtractionError(err) {
		t.Fatalf("expected ExtractionError for unsupported format, got %v", err)
	}
}

func TestPromoteSupportFiles_SkipsEngineNames(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	for _, n := range []string{"engine.dll", "libengine.so", "zlib.dll", "nvrtc.dll"} {
		if err := os.WriteFile(filepath.Join(src, n), []byte(n), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	copied, err := PromoteSupportFiles(src, dst)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	sort.Strings(copied)
	if len(copied) != 2 || copied[0] != "nvrtc.dll" || copied[1] != "zlib.dll" {
		t.Fatalf("unexpected promoted files %v", copied)
	}
	if _, err := PromoteSupportFiles(filepath.Join(src, "missing"), dst); err == nil {
		t.Fatalf("expected error for missing source dir")
	}
}
