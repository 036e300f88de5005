package cli

import (
	"fmt"
	"io"
	"sync"

	"enginectl/pkg/types"
)

// progressPrinter writes one line per job whenever its progress or status
// changes.
type progressPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	last map[string]string
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, last: make(map[string]string)}
}

func (p *progressPrinter) Publish(jobs []types.DownloadJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, j := range jobs {
		title := j.Title
		if title == "" {
			title = j.ID
		}
		line := fmt.Sprintf("%s: %s %d%%", title, j.Status, j.Progress)
		if j.Error != "" {
			line += " (" + j.Error + ")"
		}
		if p.last[j.ID] == line {
			continue
		}
		p.last[j.ID] = line
		fmt.Fprintln(p.w, line)
	}
}
