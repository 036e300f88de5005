// Package httpapi exposes engine management, the engine process and download
// jobs over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"enginectl/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListEngines() []types.EngineRecord
	GetEngine(name string) (types.EngineRecord, error)
	InstallEngine(ctx context.Context, name string, req types.InstallEngineRequest) error
	StartEngine(ctx context.Context) (types.OperationResult, error)
	StopEngine(ctx context.Context) types.OperationResult
	ProcessStatus() types.ProcessStatus
	SubmitDownload(ctx context.Context, req types.SubmitDownloadRequest) (types.SubmitDownloadResponse, error)
	AbortDownload(id string) bool
	DownloadState() []types.DownloadJob
	SubscribeDownloads() (<-chan []types.DownloadJob, func())
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if c := corsMiddleware(); c != nil {
		r.Use(c)
	}
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc}
	r.Route("/v1", func(r chi.Router) {
		r.Get("/engines", h.listEngines)
		r.Get("/engines/{name}", h.getEngine)
		r.Post("/engines/{name}/install", h.installEngine)

		r.Get("/process", h.processStatus)
		r.Post("/process/start", h.startProcess)
		r.Post("/process/stop", h.stopProcess)

		r.Get("/downloads", h.downloadState)
		r.Post("/downloads", h.submitDownload)
		r.Get("/downloads/events", h.downloadEvents)
		r.Delete("/downloads/{id}", h.abortDownload)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

type handlers struct {
	svc Service
}

// listEngines godoc
// @Summary      List engines
// @Tags         engines
// @Produce      json
// @Success      200  {object}  types.EnginesResponse
// @Router       /v1/engines [get]
func (h *handlers) listEngines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.EnginesResponse{Engines: h.svc.ListEngines()})
}

// getEngine godoc
// @Summary      Get one engine
// @Tags         engines
// @Produce      json
// @Param        name  path      string  true  "Engine name or alias"
// @Success      200   {object}  types.EngineRecord
// @Failure      404   {object}  types.ErrorResponse
// @Router       /v1/engines/{name} [get]
func (h *handlers) getEngine(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetEngine(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// installEngine godoc
// @Summary      Install an engine in the background
// @Tags         engines
// @Accept       json
// @Produce      json
// @Param        name  path      string                      true   "Engine name or alias"
// @Param        body  body      types.InstallEngineRequest  false  "Install options"
// @Success      202   {object}  types.OperationResult
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Router       /v1/engines/{name}/install [post]
func (h *handlers) installEngine(w http.ResponseWriter, r *http.Request) {
	var req types.InstallEngineRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	rec, err := h.svc.GetEngine(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	name := rec.Name
	go func() {
		if err := h.svc.InstallEngine(serverBaseCtx, name, req); err != nil {
			zlog.Error().Err(err).Str("engine", name).Msg("engine install failed")
			return
		}
		zlog.Info().Str("engine", name).Msg("engine installed")
	}()
	writeJSON(w, http.StatusAccepted, types.OperationResult{
		Message: fmt.Sprintf("Installation of %s started", name),
		Status:  "accepted",
	})
}

// processStatus godoc
// @Summary      Engine process state
// @Tags         process
// @Produce      json
// @Success      200  {object}  types.ProcessStatus
// @Router       /v1/process [get]
func (h *handlers) processStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ProcessStatus())
}

// startProcess godoc
// @Summary      Start the engine process and wait until it is healthy
// @Tags         process
// @Produce      json
// @Success      200  {object}  types.OperationResult
// @Failure      409  {object}  types.ErrorResponse
// @Failure      502  {object}  types.ErrorResponse
// @Router       /v1/process/start [post]
func (h *handlers) startProcess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	res, err := h.svc.StartEngine(ctx)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// stopProcess godoc
// @Summary      Stop the engine process
// @Tags         process
// @Produce      json
// @Success      200  {object}  types.OperationResult
// @Router       /v1/process/stop [post]
func (h *handlers) stopProcess(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.StopEngine(r.Context()))
}

// downloadState godoc
// @Summary      Active download jobs
// @Tags         downloads
// @Produce      json
// @Success      200  {object}  types.DownloadStateResponse
// @Router       /v1/downloads [get]
func (h *handlers) downloadState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.DownloadStateResponse{Jobs: h.svc.DownloadState()})
}

// submitDownload godoc
// @Summary      Submit a download job
// @Description  Returns 202 when the job was registered and 200 when a job with the same id is already active.
// @Tags         downloads
// @Accept       json
// @Produce      json
// @Param        body  body      types.SubmitDownloadRequest  true  "Job"
// @Success      200   {object}  types.SubmitDownloadResponse
// @Success      202   {object}  types.SubmitDownloadResponse
// @Failure      400   {object}  types.ErrorResponse
// @Router       /v1/downloads [post]
func (h *handlers) submitDownload(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitDownloadRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	resp, err := h.svc.SubmitDownload(serverBaseCtx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusAccepted
	if !resp.Accepted {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// abortDownload godoc
// @Summary      Abort a download job
// @Tags         downloads
// @Produce      json
// @Param        id   path      string  true  "Job id"
// @Success      200  {object}  types.OperationResult
// @Failure      404  {object}  types.ErrorResponse
// @Router       /v1/downloads/{id} [delete]
func (h *handlers) abortDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.svc.AbortDownload(id) {
		writeJSONError(w, http.StatusNotFound, "download not active: "+id)
		return
	}
	writeJSON(w, http.StatusOK, types.OperationResult{Message: "Download aborted", Status: "success"})
}

// downloadEvents godoc
// @Summary      Stream download snapshots as server-sent events
// @Description  Each event carries the full active job list. The first event is the current state.
// @Tags         downloads
// @Produce      text/event-stream
// @Success      200  {array}  types.DownloadJob
// @Router       /v1/downloads/events [get]
func (h *handlers) downloadEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ch, unsubscribe := h.svc.SubscribeDownloads()
	defer unsubscribe()
	eventStreams.Inc()
	defer eventStreams.Dec()

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, h.svc.DownloadState()); err != nil {
		return
	}
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, snap); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, jobs []types.DownloadJob) error {
	if jobs == nil {
		jobs = []types.DownloadJob{}
	}
	b, err := json.Marshal(jobs)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: downloads\ndata: %s\n\n", b)
	return err
}

// decodeJSON reads a size-limited JSON body into v. With optional set an
// empty body is accepted and leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
