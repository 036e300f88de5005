package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"enginectl/internal/config"
	"enginectl/internal/download"
	"enginectl/internal/supervisor"
	"enginectl/pkg/types"
)

func newTestApp(t *testing.T, pub download.Publisher) *App {
	t.Helper()
	dir := t.TempDir()
	a, err := New(config.Config{
		DataDir:    filepath.Join(dir, "data"),
		RecordPath: filepath.Join(dir, "enginerc"),
		EnginePort: 1,
	}, Options{Logger: zerolog.Nop(), Publisher: pub})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return a
}

func TestNew_CreatesRecordAndLayout(t *testing.T) {
	a := newTestApp(t, nil)
	rec := a.Record()
	if rec.EnginePort != 1 || rec.EngineHost != config.DefaultEngineHost {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, err := os.Stat(a.Config.RecordPath); err != nil {
		t.Fatalf("record file: %v", err)
	}
	for _, sub := range []string{config.EnginesFolder, config.ModelsFolder} {
		if fi, err := os.Stat(filepath.Join(rec.DataFolderPath, sub)); err != nil || !fi.IsDir() {
			t.Fatalf("missing %s: %v", sub, err)
		}
	}
	if len(a.ListEngines()) != 3 {
		t.Fatalf("expected seeded engines")
	}
}

func TestPersistAddress_RewritesRecord(t *testing.T) {
	a := newTestApp(t, nil)
	if err := a.persistAddress("0.0.0.0", 4000); err != nil {
		t.Fatalf("persist: %v", err)
	}
	rec, err := config.ReadRecord(a.Config.RecordPath, config.Record{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.EngineHost != "0.0.0.0" || rec.EnginePort != 4000 {
		t.Fatalf("record not rewritten: %+v", rec)
	}
}

func TestStartEngine_NotInstalled(t *testing.T) {
	a := newTestApp(t, nil)
	if _, err := a.StartEngine(context.Background()); !supervisor.IsNotInstalled(err) {
		t.Fatalf("expected not installed, got %v", err)
	}
}

func TestSubmitDownload_GeneratedIDDuplicateAndValidation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-release
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()
	defer func() {
		select {
		case <-release:
		default:
			close(release)
		}
	}()

	mem := download.NewMemoryPublisher()
	a := newTestApp(t, mem)
	ch, cancel := a.SubscribeDownloads()
	defer cancel()

	dest := filepath.Join(t.TempDir(), "f")
	req := types.SubmitDownloadRequest{Title: "f", Type: types.DownloadTypeModel, Targets: []types.DownloadTarget{{URL: srv.URL, Destination: dest}}}
	resp, err := a.SubmitDownload(context.Background(), req)
	if err != nil || !resp.Accepted || resp.ID == "" {
		t.Fatalf("submit: %+v err=%v", resp, err)
	}

	req.ID = resp.ID
	dup, err := a.SubmitDownload(context.Background(), req)
	if err != nil || dup.Accepted || dup.ID != resp.ID {
		t.Fatalf("duplicate: %+v err=%v", dup, err)
	}

	if _, err := a.SubmitDownload(context.Background(), types.SubmitDownloadRequest{ID: "empty"}); !download.IsInvalidRequest(err) {
		t.Fatalf("expected invalid request, got %v", err)
	}

	close(release)
	deadline := time.After(5 * time.Second)
	// nothing before the submission published an empty snapshot
	for done := false; !done; {
		select {
		case snap := <-ch:
			done = len(snap) == 0
		case <-deadline:
			t.Fatalf("job still active: %+v", a.DownloadState())
		}
	}
	if b, err := os.ReadFile(dest); err != nil || string(b) != "ok" {
		t.Fatalf("file: %q err=%v", b, err)
	}
	// the extra publisher receives the same snapshots as the broadcaster
	for end := time.Now().Add(2 * time.Second); ; time.Sleep(10 * time.Millisecond) {
		if last, ok := mem.Last(); ok && len(last) == 0 {
			break
		}
		if time.Now().After(end) {
			t.Fatalf("memory publisher never saw the final snapshot")
		}
	}
	if first := mem.Snapshots()[0]; len(first) != 1 || first[0].ID != resp.ID || first[0].Status != types.DownloadQueued {
		t.Fatalf("first snapshot %+v", first)
	}
}
