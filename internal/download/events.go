package download

import (
	"sync"

	"enginectl/pkg/types"
)

// Publisher receives a full snapshot of active jobs after every observable
// change. Publish is called synchronously and serialized; implementations
// must not block for long and must not call back into the Orchestrator.
type Publisher interface {
	Publish(jobs []types.DownloadJob)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(jobs []types.DownloadJob)

func (f PublisherFunc) Publish(jobs []types.DownloadJob) { f(jobs) }

// noopPublisher is the default; it drops snapshots.
type noopPublisher struct{}

func (noopPublisher) Publish([]types.DownloadJob) {}

// Tee fans a snapshot out to several publishers in order.
func Tee(pubs ...Publisher) Publisher {
	return PublisherFunc(func(jobs []types.DownloadJob) {
		for _, p := range pubs {
			if p != nil {
				p.Publish(jobs)
			}
		}
	})
}

// MemoryPublisher stores snapshots in-memory for tests.
type MemoryPublisher struct {
	mu        sync.Mutex
	snapshots [][]types.DownloadJob
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(jobs []types.DownloadJob) {
	p.mu.Lock()
	p.snapshots = append(p.snapshots, jobs)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Snapshots() [][]types.DownloadJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]types.DownloadJob, len(p.snapshots))
	copy(out, p.snapshots)
	return out
}

// Last returns the most recent snapshot and whether any was published.
func (p *MemoryPublisher) Last() ([]types.DownloadJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.snapshots) == 0 {
		return nil, false
	}
	return p.snapshots[len(p.snapshots)-1], true
}

// Broadcaster fans snapshots out to channel subscribers. A subscriber that
// falls behind only sees the latest snapshot. Snapshots are shared between
// subscribers and must be treated as read-only.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan []types.DownloadJob]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan []types.DownloadJob]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel func unsubscribes
// and closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan []types.DownloadJob, func()) {
	ch := make(chan []types.DownloadJob, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Publish(jobs []types.DownloadJob) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- jobs:
		default:
			// drop the stale snapshot, keep the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- jobs:
			default:
			}
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
