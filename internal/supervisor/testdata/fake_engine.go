package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

// Usage: fake_engine 1 <host> <port>
//
// FAKE_ENGINE_EXIT=<code> exits immediately with code.
// FAKE_ENGINE_DELAY_MS=<n> waits before listening.
func main() {
	if len(os.Args) != 4 {
		log.Fatalf("usage: %s 1 host port", os.Args[0])
	}
	if code := os.Getenv("FAKE_ENGINE_EXIT"); code != "" {
		n, _ := strconv.Atoi(code)
		os.Exit(n)
	}
	if ms, err := strconv.Atoi(os.Getenv("FAKE_ENGINE_DELAY_MS")); err == nil && ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
	addr := fmt.Sprintf("%s:%s", os.Args[2], os.Args[3])

	done := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/env", func(w http.ResponseWriter, r *http.Request) {
		wd, _ := os.Getwd()
		_, _ = fmt.Fprintf(w, "%s\n%s", os.Getenv("CUDA_VISIBLE_DEVICES"), wd)
	})
	mux.HandleFunc("/processmanager/destroy", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		select {
		case <-done:
		default:
			close(done)
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case <-sigCh:
	case <-done:
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
