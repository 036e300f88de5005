package download

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"enginectl/pkg/types"
)

// transfer streams one target to its destination. The cancellation handle is
// registered before the request is issued so Abort always reaches it.
func (o *Orchestrator) transfer(ctx context.Context, js *jobState, t types.DownloadTarget) error {
	tctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if !o.addCancel(js, t.Destination, cancel) {
		return o.transferError(js, t, 0, ErrAborted)
	}
	defer o.removeCancel(js, t.Destination)

	watchdog := time.AfterFunc(o.inactivity, func() { cancel(ErrTransferTimeout) })
	defer watchdog.Stop()

	req, err := http.NewRequestWithContext(tctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return o.transferError(js, t, 0, err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return o.transferError(js, t, 0, causeOr(tctx, err))
	}
	defer resp.Body.Close()
	watchdog.Reset(o.inactivity)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return o.transferError(js, t, resp.StatusCode, errors.New(resp.Status))
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	o.update(js, func(js *jobState) bool {
		it := &js.job.Children[js.index[t.Destination]]
		it.Size.Total = total
		it.Status = types.DownloadDownloading
		return js.recompute(types.DownloadDownloading)
	})

	if err := os.MkdirAll(filepath.Dir(t.Destination), 0o755); err != nil {
		return o.transferError(js, t, 0, err)
	}
	f, err := os.Create(t.Destination)
	if err != nil {
		return o.transferError(js, t, 0, err)
	}
	written, err := o.copyBody(tctx, js, t, f, resp.Body, watchdog)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(t.Destination)
		return o.transferError(js, t, 0, err)
	}

	o.log.Debug().Str("job", js.job.ID).Str("destination", t.Destination).Int64("bytes", written).Msg("transfer complete")
	o.update(js, func(js *jobState) bool {
		it := &js.job.Children[js.index[t.Destination]]
		it.Status = types.DownloadDownloaded
		if it.Size.Total == 0 {
			it.Size.Total = it.Size.Transferred
		}
		it.Progress = 100
		js.recompute(js.job.Status)
		return true
	})
	return nil
}

func (o *Orchestrator) copyBody(ctx context.Context, js *jobState, t types.DownloadTarget, w io.Writer, r io.Reader, watchdog *time.Timer) (int64, error) {
	buf := make([]byte, defaultBufferSize)
	bytes := bytesTotal.WithLabelValues(typeLabel(string(js.job.Type)))
	var written int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			watchdog.Reset(o.inactivity)
			if _, err := w.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			bytes.Add(float64(n))
			transferred := written
			o.update(js, func(js *jobState) bool {
				it := &js.job.Children[js.index[t.Destination]]
				it.Size.Transferred = transferred
				it.Progress = percent(transferred, it.Size.Total)
				return js.recompute(types.DownloadDownloading)
			})
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, causeOr(ctx, rerr)
		}
		if ctx.Err() != nil {
			return written, context.Cause(ctx)
		}
	}
}

// recompute sets the job status and aggregate progress and reports whether
// either changed.
func (js *jobState) recompute(status types.DownloadStatus) bool {
	prev, prevStatus := js.job.Progress, js.job.Status
	js.job.Status = status
	js.job.Progress = aggregateProgress(js.job.Children)
	return prev != js.job.Progress || prevStatus != js.job.Status
}

func (o *Orchestrator) addCancel(js *jobState, dest string, cancel context.CancelCauseFunc) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.jobs[js.job.ID] != js {
		return false
	}
	js.cancels[dest] = cancel
	return true
}

func (o *Orchestrator) removeCancel(js *jobState, dest string) {
	o.mu.Lock()
	delete(js.cancels, dest)
	o.mu.Unlock()
}

func (o *Orchestrator) transferError(js *jobState, t types.DownloadTarget, status int, err error) error {
	return &TransferError{JobID: js.job.ID, Destination: t.Destination, Status: status, Err: err}
}

// causeOr prefers the context's cancellation cause (timeout, abort) over the
// transport error it produced.
func causeOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
	}
	return err
}
